package storage

import (
	"time"

	"github.com/zot/turtle/internal/project"
)

// SaveRecord encodes rec and stores it under name.
func SaveRecord(b Backend, name string, rec *project.Record) error {
	data, err := project.Encode(rec)
	if err != nil {
		return err
	}
	packed, err := project.Compress(data)
	if err != nil {
		return err
	}
	return b.Store(&ProjectData{Name: name, Data: packed, UpdatedAt: time.Now()})
}

// LoadRecord fetches and decodes the project stored under name.
func LoadRecord(b Backend, name string) (*project.Record, error) {
	p, err := b.Load(name)
	if err != nil {
		return nil, err
	}
	data, err := project.Decompress(p.Data)
	if err != nil {
		return nil, err
	}
	return project.Decode(data)
}
