package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"
)

// schemaVersion is bumped when the stored JSON layout changes.
const schemaVersion uint32 = 1

var (
	bucketDevices = []byte("devices")
	bucketNetwork = []byte("network")
	bucketMeta    = []byte("meta")
	keyNetState   = []byte("state")
	keySchema     = []byte("schema")
)

var (
	_ Store = (*BoltStore)(nil)
	_ Store = (*Memory)(nil)
)

// BoltStore implements Store using BoltDB. Devices are keyed by their
// "0x"-prefixed lowercase IEEE address, so ForEach yields them sorted.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database. A database written by
// a newer schema is refused.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDevices, bucketNetwork, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keySchema); len(v) == 4 {
			if got := binary.BigEndian.Uint32(v); got > schemaVersion {
				return fmt.Errorf("store schema %d is newer than supported %d", got, schemaVersion)
			}
		}
		return meta.Put(keySchema, binary.BigEndian.AppendUint32(nil, schemaVersion))
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func bucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("bucket %q not found", name)
	}
	return b, nil
}

func readDevice(b *bolt.Bucket, ieee string) (*Device, error) {
	data := b.Get([]byte(ieee))
	if data == nil {
		return nil, fmt.Errorf("device %s: %w", ieee, ErrNotFound)
	}
	var dev Device
	if err := json.Unmarshal(data, &dev); err != nil {
		return nil, fmt.Errorf("decode device %s: %w", ieee, err)
	}
	return &dev, nil
}

func writeDevice(b *bolt.Bucket, dev *Device) error {
	data, err := json.Marshal(dev)
	if err != nil {
		return fmt.Errorf("encode device %s: %w", dev.IEEEAddress, err)
	}
	return b.Put([]byte(dev.IEEEAddress), data)
}

func (s *BoltStore) SaveDevice(dev *Device) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		return writeDevice(b, dev)
	})
}

func (s *BoltStore) GetDevice(ieee string) (*Device, error) {
	var dev *Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		dev, err = readDevice(b, ieee)
		return err
	})
	return dev, err
}

// UpdateDevice applies fn to the stored device inside one transaction.
func (s *BoltStore) UpdateDevice(ieee string, fn func(dev *Device) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		dev, err := readDevice(b, ieee)
		if err != nil {
			return err
		}
		if err := fn(dev); err != nil {
			return err
		}
		// fn must not move the device to another key.
		dev.IEEEAddress = ieee
		return writeDevice(b, dev)
	})
}

func (s *BoltStore) DeleteDevice(ieee string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		if b.Get([]byte(ieee)) == nil {
			return fmt.Errorf("device %s: %w", ieee, ErrNotFound)
		}
		return b.Delete([]byte(ieee))
	})
}

// ListDevices returns every device ordered by IEEE address.
func (s *BoltStore) ListDevices() ([]*Device, error) {
	var devices []*Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		devices = make([]*Device, 0, b.Stats().KeyN)
		return b.ForEach(func(k, _ []byte) error {
			dev, err := readDevice(b, string(k))
			if err != nil {
				return err
			}
			devices = append(devices, dev)
			return nil
		})
	})
	return devices, err
}

// SaveNetworkState persists state including the network key, which the
// public JSON form of NetworkState hides.
func (s *BoltStore) SaveNetworkState(state *NetworkState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketNetwork)
		if err != nil {
			return err
		}
		data, err := json.Marshal(networkStateStorage(*state))
		if err != nil {
			return err
		}
		return b.Put(keyNetState, data)
	})
}

func (s *BoltStore) GetNetworkState() (*NetworkState, error) {
	var st networkStateStorage
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketNetwork)
		if err != nil {
			return err
		}
		data := b.Get(keyNetState)
		if data == nil {
			return fmt.Errorf("network state: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &st)
	})
	if err != nil {
		return nil, err
	}
	state := NetworkState(st)
	return &state, nil
}

// Backup writes a consistent snapshot of the database to w while the store
// stays usable.
func (s *BoltStore) Backup(w io.Writer) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("backup: %w", err)
	}
	return n, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
