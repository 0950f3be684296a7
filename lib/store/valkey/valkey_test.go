package valkey

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/uvensys/formshield/lib/store/storetest"
)

// TestImpl needs a running Valkey or Redis compatible server. Point
// VALKEY_TEST_URL at one to enable it, e.g.:
//
//	VALKEY_TEST_URL=redis://localhost:6379/15 go test ./lib/store/valkey
func TestImpl(t *testing.T) {
	url := os.Getenv("VALKEY_TEST_URL")
	if url == "" {
		t.Skip("VALKEY_TEST_URL is not set")
		return
	}

	data, err := json.Marshal(Config{URL: url})
	if err != nil {
		t.Fatal(err)
	}

	storetest.Common(t, Factory{}, json.RawMessage(data))
}

func TestFactoryValid(t *testing.T) {
	f := Factory{}

	for _, tt := range []struct {
		name string
		cfg  Config
		err  error
	}{
		{
			name: "no url",
			cfg:  Config{},
			err:  ErrNoURL,
		},
		{
			name: "bad url",
			cfg:  Config{URL: "garbage://nope"},
			err:  ErrBadURL,
		},
		{
			name: "good url",
			cfg:  Config{URL: "redis://localhost:6379/0"},
			err:  nil,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}

			if err := f.Valid(json.RawMessage(data)); !errors.Is(err, tt.err) {
				t.Error(fmt.Errorf("wanted %v but got: %w", tt.err, err))
			}
		})
	}
}
