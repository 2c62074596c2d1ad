package security

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// sealedBytes keeps sensitive bytes encrypted in a memguard enclave while they
// are not in use
type sealedBytes struct {
	enclave *memguard.Enclave
}

// seal moves data into an enclave. data is wiped.
func seal(data []byte) *sealedBytes {
	if len(data) == 0 {
		return &sealedBytes{}
	}
	return &sealedBytes{enclave: memguard.NewEnclave(data)}
}

// open decrypts the enclave into locked memory for the duration of fn
func (s *sealedBytes) open(fn func([]byte) error) error {
	if s == nil || s.enclave == nil {
		return fmt.Errorf("sealed data is empty or destroyed")
	}

	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("failed to open enclave: %w", err)
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}

func (s *sealedBytes) present() bool {
	return s != nil && s.enclave != nil
}

func (s *sealedBytes) destroy() {
	if s != nil {
		s.enclave = nil
	}
}

// wipe zeroes b in place
func wipe(b []byte) {
	memguard.WipeBytes(b)
}
