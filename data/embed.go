// Package data contains the assets compiled into the formshield binary.
package data

import "embed"

//go:embed integrations.yaml
var Integrations embed.FS
