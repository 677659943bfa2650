package universe

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/movers/internal/contracts"
)

// symbolPattern accepts exchange-qualified tickers such as PETR4.SA, BRK-B, ^BVSP
var symbolPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=^]*$`)

// File is the YAML shape of a universe definition
//
//	name: b3-core
//	instruments:
//	  - PETR4.SA
//	  - VALE3.SA
type File struct {
	Name        string   `yaml:"name" json:"name"`
	Instruments []string `yaml:"instruments" json:"instruments"`
}

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a universe YAML file.
// KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (contracts.Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return contracts.Universe{}, fmt.Errorf("read universe file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates universe YAML
func Parse(data []byte) (contracts.Universe, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return contracts.Universe{}, fmt.Errorf("decode universe yaml: %w", err)
	}
	return build(f)
}

// LoadOrDefault loads path, or returns the built-in universe when path is empty
func LoadOrDefault(path string) (contracts.Universe, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Hash returns a SHA256 of the universe in canonical JSON.
// Same instruments in the same order → same hash.
func Hash(u contracts.Universe) string {
	f := File{Name: u.Name()}
	for _, id := range u.Instruments() {
		f.Instruments = append(f.Instruments, string(id))
	}
	jsonBytes, _ := json.Marshal(f)
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:])
}

func build(f File) (contracts.Universe, error) {
	if strings.TrimSpace(f.Name) == "" {
		return contracts.Universe{}, ValidationError{"name", "required"}
	}
	if len(f.Instruments) == 0 {
		return contracts.Universe{}, ValidationError{"instruments", "at least one instrument required"}
	}

	ids := make([]contracts.InstrumentID, 0, len(f.Instruments))
	for i, raw := range f.Instruments {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if !symbolPattern.MatchString(sym) {
			return contracts.Universe{}, ValidationError{
				Field:   fmt.Sprintf("instruments[%d]", i),
				Message: fmt.Sprintf("invalid symbol %q", raw),
			}
		}
		ids = append(ids, contracts.InstrumentID(sym))
	}

	return contracts.NewUniverse(f.Name, ids)
}
