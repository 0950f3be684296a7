package internal

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestErrorLogFilter(t *testing.T) {
	var buf bytes.Buffer
	destLogger := log.New(&buf, "", 0)
	errorFilterWriter := &ErrorLogFilter{Unwrap: destLogger}
	testErrorLogger := log.New(errorFilterWriter, "", 0)

	suppressedMessage := "http: response write error: context canceled"
	testErrorLogger.Println(suppressedMessage)

	if buf.Len() != 0 {
		t.Errorf("Suppressed message was written to output. Output: %q", buf.String())
	}
	buf.Reset()

	allowedMessage := "http: another error occurred"
	testErrorLogger.Println(allowedMessage)

	output := buf.String()
	if !strings.Contains(output, allowedMessage) {
		t.Errorf("Allowed message was not written to output. Output: %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("Allowed message output is missing newline. Output: %q", output)
	}
	buf.Reset()

	partiallyMatchingMessage := "some other log before context canceled and after"
	testErrorLogger.Println(partiallyMatchingMessage)

	if buf.Len() != 0 {
		t.Errorf("Partially matching message was written to output. Output: %q", buf.String())
	}
}

func TestHasher(t *testing.T) {
	for _, algo := range []string{"SHA-256", "SHA-384", "SHA-512"} {
		if _, err := Hasher(algo); err != nil {
			t.Errorf("Hasher(%q): %v", algo, err)
		}
	}

	if _, err := Hasher("MD5"); err == nil {
		t.Error("Hasher(MD5) did not return an error")
	}
}
