package fingerprint

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/dshills/objindex/pkg/types"
)

// MemberName is the archive member holding the fingerprint.
const MemberName = "FINGERPRINT"

// maxMemberSize bounds how much of the member is read; a fingerprint is 64
// hex characters.
const maxMemberSize = 256

// ErrNoFingerprint is returned when an archive lacks the fingerprint member.
var ErrNoFingerprint = errors.New("archive has no fingerprint")

// ReadArchive returns the fingerprint recorded in the archive at path.
func ReadArchive(path string) (types.Fingerprint, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.Name != MemberName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open fingerprint member: %w", err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxMemberSize))
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read fingerprint member: %w", err)
		}
		fp := strings.TrimSpace(string(data))
		if fp == "" {
			return "", ErrNoFingerprint
		}
		return types.Fingerprint(fp), nil
	}

	return "", ErrNoFingerprint
}

// WriteMember adds the fingerprint member to an archive being written.
func WriteMember(w *zip.Writer, fp types.Fingerprint) error {
	fw, err := w.CreateHeader(&zip.FileHeader{Name: MemberName, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to create fingerprint member: %w", err)
	}
	if _, err := io.WriteString(fw, fp.String()+"\n"); err != nil {
		return fmt.Errorf("failed to write fingerprint member: %w", err)
	}
	return nil
}
