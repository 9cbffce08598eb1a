package storage

import (
	"fmt"

	"boltalka/internal/models"

	"go.etcd.io/bbolt"
)

// AddPushSubscription stores a web-push endpoint for the user. Re-adding the
// same endpoint replaces its keys.
func (s *BboltStorage) AddPushSubscription(sub models.PushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		userBucket, err := tx.Bucket(bucketPushSubscriptions).CreateBucketIfNotExists([]byte(sub.UserID))
		if err != nil {
			return fmt.Errorf("failed to create subscription bucket: %w", err)
		}
		return putRow(userBucket, &DBPushSubscription{
			UserID:   sub.UserID,
			Endpoint: sub.Endpoint,
			P256dh:   sub.Keys.P256dh,
			Auth:     sub.Keys.Auth,
		})
	})
}

func (s *BboltStorage) ListPushSubscriptions(userID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketPushSubscriptions).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		return userBucket.ForEach(func(k, v []byte) error {
			var dbSub DBPushSubscription
			if err := dbSub.UnmarshalBinary(v); err != nil {
				return err
			}
			subs = append(subs, models.PushSubscription{
				UserID:   dbSub.UserID,
				Endpoint: dbSub.Endpoint,
				Keys:     models.PushKeys{P256dh: dbSub.P256dh, Auth: dbSub.Auth},
			})
			return nil
		})
	})
	return subs, err
}

func (s *BboltStorage) DeletePushSubscription(userID, endpoint string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketPushSubscriptions).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		return userBucket.Delete([]byte(endpoint))
	})
}
