package storage

import (
	"fmt"
	"strings"
	"time"

	"boltalka/internal/auth"
	"boltalka/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers             = []byte("users")
	bucketNicknames         = []byte("nicknames")
	bucketEmails            = []byte("emails")
	bucketRooms             = []byte("rooms")
	bucketMessages          = []byte("messages")
	bucketPrivateMessages   = []byte("private_messages")
	bucketConversations     = []byte("conversations")
	bucketPushSubscriptions = []byte("push_subscriptions")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketNicknames,
			bucketEmails,
			bucketRooms,
			bucketMessages,
			bucketPrivateMessages,
			bucketConversations,
			bucketPushSubscriptions,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// CreateUser stores a new user. Nickname and (non-empty) email must be unique.
func (s *BboltStorage) CreateUser(credentials auth.Credentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		nicknames := tx.Bucket(bucketNicknames)
		emails := tx.Bucket(bucketEmails)

		email := strings.ToLower(credentials.Email)
		if nicknames.Get([]byte(credentials.Nickname)) != nil {
			return fmt.Errorf("nickname %q: %w", credentials.Nickname, auth.ErrUserExists)
		}
		if email != "" && emails.Get([]byte(email)) != nil {
			return fmt.Errorf("email %q: %w", email, auth.ErrUserExists)
		}

		dbUser := &DBUser{
			ID:           credentials.ID,
			Nickname:     credentials.Nickname,
			Email:        email,
			PasswordHash: credentials.PasswordHash,
			MessageColor: credentials.MessageColor,
			Gender:       string(credentials.Gender),
			CreatedAt:    toMillis(credentials.CreatedAt),
			LastSeen:     toMillis(credentials.LastSeen),
		}
		if err := putRow(tx.Bucket(bucketUsers), dbUser); err != nil {
			return err
		}
		if err := nicknames.Put([]byte(dbUser.Nickname), dbUser.Key()); err != nil {
			return err
		}
		if email != "" {
			return emails.Put([]byte(email), dbUser.Key())
		}
		return nil
	})
}

// FindCredentials looks a user up by nickname or email.
func (s *BboltStorage) FindCredentials(login string) (auth.Credentials, error) {
	var creds auth.Credentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketNicknames).Get([]byte(login))
		if id == nil {
			id = tx.Bucket(bucketEmails).Get([]byte(strings.ToLower(login)))
		}
		if id == nil {
			return models.ErrNotFound
		}
		dbUser, err := getUser(tx, string(id))
		if err != nil {
			return err
		}
		creds = auth.Credentials{User: dbUser.toModel(), PasswordHash: dbUser.PasswordHash}
		return nil
	})
	return creds, err
}

func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbUser, err := getUser(tx, id)
		if err != nil {
			return err
		}
		user = dbUser.toModel()
		return nil
	})
	return user, err
}

// UpdateProfile saves the display attributes of an existing user.
func (s *BboltStorage) UpdateProfile(user models.User) error {
	return s.updateUser(user.ID, func(u *DBUser) {
		u.MessageColor = user.MessageColor
		u.Gender = string(user.Gender)
	})
}

// TouchUser records the time the user was last seen.
func (s *BboltStorage) TouchUser(id string, at time.Time) error {
	return s.updateUser(id, func(u *DBUser) {
		u.LastSeen = toMillis(at)
	})
}

func (s *BboltStorage) updateUser(id string, update func(u *DBUser)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbUser, err := getUser(tx, id)
		if err != nil {
			return err
		}
		update(dbUser)
		return putRow(tx.Bucket(bucketUsers), dbUser)
	})
}

// EnsureRooms inserts every room that does not exist yet. Existing rooms are
// left untouched.
func (s *BboltStorage) EnsureRooms(rooms []models.Room) error {
	now := time.Now()
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRooms)
		for _, room := range rooms {
			if b.Get([]byte(room.Name)) != nil {
				continue
			}
			dbRoom := newDBRoom(room, now)
			if err := putRow(b, dbRoom); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertRoom creates the room or updates its display name and description.
func (s *BboltStorage) UpsertRoom(room models.Room) (models.Room, error) {
	var saved models.Room
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRooms)
		dbRoom := newDBRoom(room, time.Now())
		if data := b.Get(dbRoom.Key()); data != nil {
			var existing DBRoom
			if err := existing.UnmarshalBinary(data); err != nil {
				return err
			}
			dbRoom.CreatedAt = existing.CreatedAt
		}
		saved = dbRoom.toModel()
		return putRow(b, dbRoom)
	})
	return saved, err
}

// ListRooms returns all rooms ordered by name.
func (s *BboltStorage) ListRooms() ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRooms).ForEach(func(k, v []byte) error {
			var dbRoom DBRoom
			if err := dbRoom.UnmarshalBinary(v); err != nil {
				return err
			}
			rooms = append(rooms, dbRoom.toModel())
			return nil
		})
	})
	return rooms, err
}

func (s *BboltStorage) GetRoom(name string) (models.Room, error) {
	var room models.Room
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRooms).Get([]byte(name))
		if data == nil {
			return models.ErrNotFound
		}
		var dbRoom DBRoom
		if err := dbRoom.UnmarshalBinary(data); err != nil {
			return err
		}
		room = dbRoom.toModel()
		return nil
	})
	return room, err
}

func newDBRoom(room models.Room, now time.Time) *DBRoom {
	createdAt := room.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	displayName := room.DisplayName
	if displayName == "" {
		displayName = room.Name
	}
	return &DBRoom{
		Name:        room.Name,
		DisplayName: displayName,
		Description: room.Description,
		CreatedAt:   toMillis(createdAt),
	}
}

func getUser(tx *bbolt.Tx, id string) (*DBUser, error) {
	data := tx.Bucket(bucketUsers).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	var dbUser DBUser
	if err := dbUser.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &dbUser, nil
}

func putRow(b *bbolt.Bucket, row Storeable) error {
	data, err := row.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	return b.Put(row.Key(), data)
}
