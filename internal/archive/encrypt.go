package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/agessh"
)

// EncryptedExt is appended to archive names when encryption is enabled.
const EncryptedExt = ".age"

// ErrNoRecipients is returned when encryption is requested without recipients.
var ErrNoRecipients = errors.New("no AGE recipients configured")

// RecipientSource lists where AGE recipients come from.
type RecipientSource struct {
	Recipients    []string
	RecipientFile string
	Passphrase    string
}

// Encrypter encrypts serialized archives for a fixed recipient set.
type Encrypter struct {
	recipients []age.Recipient
}

// NewEncrypter resolves every configured recipient.
func NewEncrypter(src RecipientSource) (*Encrypter, error) {
	values := append([]string(nil), src.Recipients...)
	if strings.TrimSpace(src.RecipientFile) != "" {
		fromFile, err := readRecipientFile(src.RecipientFile)
		if err != nil {
			return nil, fmt.Errorf("read recipient file %s: %w", src.RecipientFile, err)
		}
		values = append(values, fromFile...)
	}
	if src.Passphrase != "" {
		derived, err := DeriveRecipient(src.Passphrase)
		if err != nil {
			return nil, err
		}
		values = append(values, derived)
	}

	recipients, err := ParseRecipients(values)
	if err != nil {
		return nil, err
	}
	return &Encrypter{recipients: recipients}, nil
}

// Recipients returns how many recipients the archive is encrypted for.
func (e *Encrypter) Recipients() int {
	return len(e.recipients)
}

// Encrypt returns data as an AGE binary file.
func (e *Encrypter) Encrypt(data []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := age.Encrypt(&out, e.recipients...)
	if err != nil {
		return nil, fmt.Errorf("initialize encryption: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("encrypt archive: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize encryption: %w", err)
	}
	return out.Bytes(), nil
}

// ParseRecipients parses age1 and ssh- recipients, ignoring blanks and duplicates.
func ParseRecipients(values []string) ([]age.Recipient, error) {
	values = dedupeRecipientStrings(values)
	if len(values) == 0 {
		return nil, ErrNoRecipients
	}
	parsed := make([]age.Recipient, 0, len(values))
	for _, value := range values {
		recipient, err := parseRecipientString(value)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, recipient)
	}
	return parsed, nil
}

func parseRecipientString(value string) (age.Recipient, error) {
	switch {
	case strings.HasPrefix(value, "age1"):
		return age.ParseX25519Recipient(value)
	case strings.HasPrefix(strings.ToLower(value), "ssh-"):
		return agessh.ParseRecipient(value)
	default:
		return nil, fmt.Errorf("unsupported AGE recipient format: %s", value)
	}
}

func dedupeRecipientStrings(values []string) []string {
	seen := make(map[string]struct{})
	result := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func readRecipientFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var recipients []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		recipients = append(recipients, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return recipients, nil
}
