package relay

import (
	"encoding/binary"
	"encoding/json"

	"github.com/etcd-io/bbolt"
	"github.com/pkg/errors"
)

// BoltRelayStore persists laps, session metrics and driver profiles in a
// bbolt database with JSON-encoded values.
type BoltRelayStore struct {
	db *bbolt.DB
}

func NewBoltRelayStore(db *bbolt.DB) RelayStore {
	return &BoltRelayStore{db: db}
}

var (
	sessionLapsBucketName       = []byte("sessionLaps")
	sessionMetricsBucketName    = []byte("sessionMetrics")
	driverProfilesBucketName    = []byte("driverProfiles")
	profilePlatformIDBucketName = []byte("driverProfilesByPlatformID")
)

func (bs *BoltRelayStore) encode(data interface{}) ([]byte, error) {
	return json.Marshal(data)
}

func (bs *BoltRelayStore) decode(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

func (bs *BoltRelayStore) RecordLap(sessionID string, lap *LapData) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		parent, err := tx.CreateBucketIfNotExists(sessionLapsBucketName)

		if err != nil {
			return err
		}

		bkt, err := parent.CreateBucketIfNotExists([]byte(sessionID))

		if err != nil {
			return err
		}

		seq, err := bkt.NextSequence()

		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		encoded, err := bs.encode(lap)

		if err != nil {
			return err
		}

		return bkt.Put(key, encoded)
	})
}

// ListSessionLaps returns laps in recording order. An unknown session id
// yields an empty slice, not an error.
func (bs *BoltRelayStore) ListSessionLaps(sessionID string) ([]*LapData, error) {
	var laps []*LapData

	err := bs.db.View(func(tx *bbolt.Tx) error {
		parent := tx.Bucket(sessionLapsBucketName)

		if parent == nil {
			return nil
		}

		bkt := parent.Bucket([]byte(sessionID))

		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(k, v []byte) error {
			var lap LapData

			if err := bs.decode(v, &lap); err != nil {
				return err
			}

			laps = append(laps, &lap)

			return nil
		})
	})

	if err != nil {
		return nil, errors.Wrapf(err, "could not list laps for session: %s", sessionID)
	}

	return laps, nil
}

func sessionMetricsKey(sessionID, profileID string) []byte {
	return []byte(sessionID + "/" + profileID)
}

func (bs *BoltRelayStore) UpsertSessionMetrics(metrics *SessionMetrics) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(sessionMetricsBucketName)

		if err != nil {
			return err
		}

		encoded, err := bs.encode(metrics)

		if err != nil {
			return err
		}

		return bkt.Put(sessionMetricsKey(metrics.SessionID, metrics.ProfileID), encoded)
	})
}

func (bs *BoltRelayStore) FindSessionMetrics(sessionID, profileID string) (*SessionMetrics, error) {
	var metrics *SessionMetrics

	err := bs.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(sessionMetricsBucketName)

		if bkt == nil {
			return ErrValueNotSet
		}

		data := bkt.Get(sessionMetricsKey(sessionID, profileID))

		if data == nil {
			return ErrValueNotSet
		}

		metrics = &SessionMetrics{}

		return bs.decode(data, metrics)
	})

	if err != nil {
		return nil, err
	}

	return metrics, nil
}

func (bs *BoltRelayStore) UpsertDriverProfile(profile *DriverProfile) error {
	return bs.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(driverProfilesBucketName)

		if err != nil {
			return err
		}

		index, err := tx.CreateBucketIfNotExists(profilePlatformIDBucketName)

		if err != nil {
			return err
		}

		encoded, err := bs.encode(profile)

		if err != nil {
			return err
		}

		if err := bkt.Put([]byte(profile.ID), encoded); err != nil {
			return err
		}

		return index.Put([]byte(profile.PlatformID), []byte(profile.ID))
	})
}

func (bs *BoltRelayStore) FindDriverProfileByPlatformID(platformID string) (*DriverProfile, error) {
	var profile *DriverProfile

	err := bs.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket(profilePlatformIDBucketName)

		if index == nil {
			return ErrProfileNotFound
		}

		profileID := index.Get([]byte(platformID))

		if profileID == nil {
			return ErrProfileNotFound
		}

		bkt := tx.Bucket(driverProfilesBucketName)

		if bkt == nil {
			return ErrProfileNotFound
		}

		data := bkt.Get(profileID)

		if data == nil {
			return ErrProfileNotFound
		}

		profile = &DriverProfile{}

		return bs.decode(data, profile)
	})

	if err != nil {
		return nil, err
	}

	return profile, nil
}

func (bs *BoltRelayStore) IncrementProfileStats(profileID string, sessions, laps, incidents int) error {
	err := bs.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(driverProfilesBucketName)

		if err != nil {
			return err
		}

		data := bkt.Get([]byte(profileID))

		if data == nil {
			return ErrProfileNotFound
		}

		var profile DriverProfile

		if err := bs.decode(data, &profile); err != nil {
			return err
		}

		profile.TotalSessions += sessions
		profile.TotalLaps += laps
		profile.TotalIncidents += incidents

		encoded, err := bs.encode(&profile)

		if err != nil {
			return err
		}

		return bkt.Put([]byte(profileID), encoded)
	})

	return errors.Wrapf(err, "could not increment stats for profile: %s", profileID)
}
