package chat

import (
	"fmt"

	"boltalka/internal/models"
)

type Action string

const (
	ActionJoin   Action = "join"
	ActionSwitch Action = "switch"
	ActionLeave  Action = "leave"
)

var verbs = map[Action]map[models.Gender]string{
	ActionJoin: {
		models.GenderMale:    "вошёл",
		models.GenderFemale:  "вошла",
		models.GenderUnknown: "влезло",
	},
	ActionSwitch: {
		models.GenderMale:    "перешёл",
		models.GenderFemale:  "перешла",
		models.GenderUnknown: "переполз",
	},
	ActionLeave: {
		models.GenderMale:    "покинул",
		models.GenderFemale:  "покинула",
		models.GenderUnknown: "уполз из",
	},
}

// Verb returns the verb form for the action and gender, falling back to the
// male form for an unrecognized gender.
func Verb(action Action, gender models.Gender) string {
	forms := verbs[action]
	if v, ok := forms[gender]; ok {
		return v
	}
	return forms[models.GenderMale]
}

func joinedText(gender models.Gender) string {
	return Verb(ActionJoin, gender) + " в комнату"
}

func switchedText(gender models.Gender, target string) string {
	return fmt.Sprintf("%s в комнату %s", Verb(ActionSwitch, gender), target)
}

func leftText(gender models.Gender) string {
	return Verb(ActionLeave, gender) + " чат"
}
