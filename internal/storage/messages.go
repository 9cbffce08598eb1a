package storage

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"boltalka/internal/models"

	"go.etcd.io/bbolt"
)

// InsertMessage saves a public room message and returns it as stored.
func (s *BboltStorage) InsertMessage(message models.Message) (models.Message, error) {
	var saved models.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if message.Room == "" {
			return errors.New("message missing room")
		}

		roomBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(message.Room))
		if err != nil {
			return fmt.Errorf("failed to create room bucket: %w", err)
		}
		seq, err := roomBucket.NextSequence()
		if err != nil {
			return err
		}

		dbMessage := &DBMessage{
			Seq:          seq,
			ID:           message.ID,
			UserID:       message.UserID,
			Nickname:     message.Nickname,
			MessageColor: message.MessageColor,
			Text:         message.Text,
			Room:         message.Room,
			ToUserID:     message.ToUserID,
			ToNickname:   message.ToNickname,
			Timestamp:    toMillis(message.Timestamp),
		}
		if err := putRow(roomBucket, dbMessage); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}
		saved = dbMessage.toModel()
		return nil
	})
	return saved, err
}

// LastMessages returns up to limit most recent messages of the room in
// ascending time order.
func (s *BboltStorage) LastMessages(room string, limit int) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		roomBucket := tx.Bucket(bucketMessages).Bucket([]byte(room))
		if roomBucket == nil {
			return nil
		}

		c := roomBucket.Cursor()
		for k, v := c.Last(); k != nil && len(messages) < limit; k, v = c.Prev() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMsg.toModel())
		}
		return nil
	})
	slices.Reverse(messages)
	return messages, err
}

// InsertPrivateMessage saves a private message and returns it as stored.
func (s *BboltStorage) InsertPrivateMessage(message models.PrivateMessage) (models.PrivateMessage, error) {
	var saved models.PrivateMessage
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if message.FromUserID == "" || message.ToUserID == "" {
			return errors.New("private message missing participants")
		}

		pairBucket, err := tx.Bucket(bucketPrivateMessages).CreateBucketIfNotExists(pairKey(message.FromUserID, message.ToUserID))
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}
		seq, err := pairBucket.NextSequence()
		if err != nil {
			return err
		}

		dbMessage := &DBPrivateMessage{
			Seq:              seq,
			ID:               message.ID,
			FromUserID:       message.FromUserID,
			FromNickname:     message.FromNickname,
			FromMessageColor: message.FromMessageColor,
			ToUserID:         message.ToUserID,
			ToNickname:       message.ToNickname,
			Text:             message.Text,
			Read:             message.Read,
			Timestamp:        toMillis(message.Timestamp),
		}
		if err := putRow(pairBucket, dbMessage); err != nil {
			return fmt.Errorf("failed to put private message: %w", err)
		}

		// Remember the counterpart on both sides for conversation listing.
		conversations := tx.Bucket(bucketConversations)
		for _, ids := range [][2]string{{message.FromUserID, message.ToUserID}, {message.ToUserID, message.FromUserID}} {
			userBucket, err := conversations.CreateBucketIfNotExists([]byte(ids[0]))
			if err != nil {
				return err
			}
			if err := userBucket.Put([]byte(ids[1]), []byte{}); err != nil {
				return err
			}
		}

		saved = dbMessage.toModel()
		return nil
	})
	return saved, err
}

// PrivateMessages returns up to limit most recent messages exchanged between
// the two users in ascending time order.
func (s *BboltStorage) PrivateMessages(userID, partnerID string, limit int) ([]models.PrivateMessage, error) {
	messages := []models.PrivateMessage{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		pairBucket := tx.Bucket(bucketPrivateMessages).Bucket(pairKey(userID, partnerID))
		if pairBucket == nil {
			return nil
		}

		c := pairBucket.Cursor()
		for k, v := c.Last(); k != nil && len(messages) < limit; k, v = c.Prev() {
			var dbMsg DBPrivateMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMsg.toModel())
		}
		return nil
	})
	slices.Reverse(messages)
	return messages, err
}

// MarkRead flips read on every unread message sent by senderID to
// recipientID and returns how many messages changed.
func (s *BboltStorage) MarkRead(recipientID, senderID string) (int, error) {
	modified := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		pairBucket := tx.Bucket(bucketPrivateMessages).Bucket(pairKey(recipientID, senderID))
		if pairBucket == nil {
			return nil
		}

		// Collect first: bbolt cursors must not be used across Put.
		var unread []*DBPrivateMessage
		err := pairBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBPrivateMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if !dbMsg.Read && dbMsg.FromUserID == senderID && dbMsg.ToUserID == recipientID {
				unread = append(unread, &dbMsg)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, dbMsg := range unread {
			dbMsg.Read = true
			if err := putRow(pairBucket, dbMsg); err != nil {
				return err
			}
		}
		modified = len(unread)
		return nil
	})
	return modified, err
}

// UnreadCount returns the number of unread private messages addressed to userID.
func (s *BboltStorage) UnreadCount(userID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		return s.forEachPartner(tx, userID, func(partnerID string, pairBucket *bbolt.Bucket) error {
			n, err := countUnread(pairBucket, userID, partnerID)
			count += n
			return err
		})
	})
	return count, err
}

// Conversations summarizes every private exchange of userID, newest first.
func (s *BboltStorage) Conversations(userID string) ([]models.Conversation, error) {
	conversations := []models.Conversation{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return s.forEachPartner(tx, userID, func(partnerID string, pairBucket *bbolt.Bucket) error {
			_, v := pairBucket.Cursor().Last()
			if v == nil {
				return nil
			}
			var last DBPrivateMessage
			if err := last.UnmarshalBinary(v); err != nil {
				return err
			}
			unread, err := countUnread(pairBucket, userID, partnerID)
			if err != nil {
				return err
			}

			fromMe := last.FromUserID == userID
			nickname := last.FromNickname
			if fromMe {
				nickname = last.ToNickname
			}
			conversations = append(conversations, models.Conversation{
				UserID:            partnerID,
				Nickname:          nickname,
				LastMessage:       last.Text,
				LastMessageTime:   fromMillis(last.Timestamp),
				UnreadCount:       unread,
				LastMessageFromMe: fromMe,
			})
			return nil
		})
	})

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessageTime.After(conversations[j].LastMessageTime)
	})
	return conversations, err
}

func (s *BboltStorage) forEachPartner(tx *bbolt.Tx, userID string, fn func(partnerID string, pairBucket *bbolt.Bucket) error) error {
	userBucket := tx.Bucket(bucketConversations).Bucket([]byte(userID))
	if userBucket == nil {
		return nil
	}
	private := tx.Bucket(bucketPrivateMessages)
	return userBucket.ForEach(func(k, _ []byte) error {
		partnerID := string(k)
		pairBucket := private.Bucket(pairKey(userID, partnerID))
		if pairBucket == nil {
			return nil
		}
		return fn(partnerID, pairBucket)
	})
}

func countUnread(pairBucket *bbolt.Bucket, recipientID, senderID string) (int, error) {
	n := 0
	err := pairBucket.ForEach(func(k, v []byte) error {
		var dbMsg DBPrivateMessage
		if err := dbMsg.UnmarshalBinary(v); err != nil {
			return err
		}
		if !dbMsg.Read && dbMsg.ToUserID == recipientID && dbMsg.FromUserID == senderID {
			n++
		}
		return nil
	})
	return n, err
}

// pairKey is the same for both directions of a conversation.
func pairKey(a, b string) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(a + ":" + b)
}
