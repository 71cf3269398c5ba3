package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/calvinalkan/kekbit/pkg/fs"
	"github.com/calvinalkan/kekbit/pkg/kekbit"

	"github.com/tailscale/hujson"
)

// ProfileFileName is the default channel profile file name.
const ProfileFileName = ".kek.json"

// Profile holds the channel parameters shared by the kek commands. The file
// format is JSON with comments and trailing commas allowed (hujson), so a
// profile can document itself.
type Profile struct {
	Root      string `json:"root"`
	WriterID  uint64 `json:"writer_id"`
	ChannelID uint64 `json:"channel_id"`
	Capacity  uint32 `json:"capacity"`
	MaxMsgLen uint32 `json:"max_msg_len"`
	Timeout   uint64 `json:"timeout"`
	TickUnit  string `json:"tick_unit"`
}

// DefaultProfile returns the profile used when no config file exists.
func DefaultProfile() Profile {
	return Profile{
		Root:      "/tmp/kekbit",
		WriterID:  1,
		ChannelID: 1,
		Capacity:  100_000,
		MaxMsgLen: 1000,
		Timeout:   99_999_999_999,
		TickUnit:  "millis",
	}
}

// LoadProfile reads a profile file, tolerating comments and trailing commas.
// Returns the default profile if path does not exist.
func LoadProfile(fsys fs.FS, path string) (Profile, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultProfile(), nil
		}

		return Profile{}, fmt.Errorf("reading profile %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Profile{}, fmt.Errorf("parsing profile %s: %w", path, err)
	}

	profile := DefaultProfile()
	if err := json.Unmarshal(standardized, &profile); err != nil {
		return Profile{}, fmt.Errorf("parsing profile %s: %w", path, err)
	}

	return profile, nil
}

// SaveProfile writes the profile atomically so a crash never leaves a
// half-written config behind.
func SaveProfile(fsys fs.FS, path string, profile Profile) error {
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	if err := fsys.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("writing profile %s: %w", path, err)
	}

	return nil
}

// tickUnit resolves the profile's tick unit name.
func (p Profile) tickUnit() (kekbit.TickUnit, error) {
	switch p.TickUnit {
	case "nanos":
		return kekbit.Nanos, nil
	case "micros":
		return kekbit.Micros, nil
	case "millis":
		return kekbit.Millis, nil
	case "secs":
		return kekbit.Secs, nil
	default:
		return 0, fmt.Errorf("unknown tick unit %q (use nanos, micros, millis or secs)", p.TickUnit)
	}
}

// metadata builds channel metadata from the profile.
func (p Profile) metadata() (kekbit.Metadata, error) {
	unit, err := p.tickUnit()
	if err != nil {
		return kekbit.Metadata{}, err
	}

	return kekbit.NewMetadata(p.WriterID, p.ChannelID, p.Capacity, p.MaxMsgLen, p.Timeout, unit), nil
}
