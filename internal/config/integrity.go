package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// checksumSuffix is appended to the config path to locate its checksum file.
const checksumSuffix = ".b3"

// ComputeChecksum returns the hex BLAKE3 hash of the file at path.
func ComputeChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WriteChecksum records the current checksum of the config file beside it,
// authorizing its current state.
func WriteChecksum(path string) (string, error) {
	sum, err := ComputeChecksum(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path+checksumSuffix, []byte(sum+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write checksum file: %w", err)
	}
	return sum, nil
}

// VerifyChecksum compares the config file against its recorded checksum.
// A missing checksum file is not an error: integrity checking is opt-in.
func VerifyChecksum(path string) error {
	recorded, err := os.ReadFile(path + checksumSuffix)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checksum file: %w", err)
	}

	actual, err := ComputeChecksum(path)
	if err != nil {
		return err
	}

	want := strings.TrimSpace(string(recorded))
	if actual != want {
		return fmt.Errorf("checksum mismatch for %s: recorded %s, actual %s", path, want, actual)
	}
	return nil
}
