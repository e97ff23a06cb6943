package core

import (
	"fmt"

	"github.com/vovakirdan/chatcast/internal/config"
)

// FramePolicy decides what happens to frame kinds the server does not handle.
type FramePolicy int32

const (
	// FramePolicyClose treats an unsupported frame as a protocol violation.
	FramePolicyClose FramePolicy = iota
	// FramePolicyIgnore drops the frame and keeps reading.
	FramePolicyIgnore
)

// StoragePolicy decides what happens when the message log rejects an append.
type StoragePolicy int32

const (
	// StoragePolicyContinue logs the failure and broadcasts anyway.
	StoragePolicyContinue StoragePolicy = iota
	// StoragePolicyClose drops the message and closes the sender's session.
	StoragePolicyClose
)

// ParseFramePolicy maps a config value to a FramePolicy.
func ParseFramePolicy(s string) (FramePolicy, error) {
	switch s {
	case config.FramePolicyClose, "":
		return FramePolicyClose, nil
	case config.FramePolicyIgnore:
		return FramePolicyIgnore, nil
	default:
		return FramePolicyClose, fmt.Errorf("unknown frame policy %q", s)
	}
}

// ParseStoragePolicy maps a config value to a StoragePolicy.
func ParseStoragePolicy(s string) (StoragePolicy, error) {
	switch s {
	case config.StoragePolicyContinue, "":
		return StoragePolicyContinue, nil
	case config.StoragePolicyClose:
		return StoragePolicyClose, nil
	default:
		return StoragePolicyContinue, fmt.Errorf("unknown storage failure policy %q", s)
	}
}

func (p FramePolicy) String() string {
	if p == FramePolicyIgnore {
		return config.FramePolicyIgnore
	}
	return config.FramePolicyClose
}

func (p StoragePolicy) String() string {
	if p == StoragePolicyClose {
		return config.StoragePolicyClose
	}
	return config.StoragePolicyContinue
}
