// Command protoschema emits JSON schemas for the outbound wire messages so
// client implementations can validate their decoders against the server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"wildshape/server"
)

var messages = map[string]any{
	"snapshot":          new(server.SnapshotMessage),
	"token-updated":     new(server.TokenUpdatedMessage),
	"selection-updated": new(server.SelectionUpdatedMessage),
	"scene-updated":     new(server.SceneUpdatedMessage),
	"pointer-moved":     new(server.PointerMovedMessage),
	"auth-result":       new(server.AuthResultMessage),
	"dm-status":         new(server.DMStatusMessage),
	"password-result":   new(server.PasswordResultMessage),
	"heartbeat-ack":     new(server.HeartbeatAckMessage),
	"command-ack":       new(server.CommandAckMessage),
	"resync-nack":       new(server.ResyncNackMessage),
	"rtc-signal":        new(server.RTCSignalMessage),
}

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "", "directory to write the JSON schemas")
	flag.Parse()

	if outDir == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create schema directory: %v\n", err)
		os.Exit(1)
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	for name, message := range messages {
		schema := reflector.Reflect(message)
		schema.Title = name
		schema.Description = fmt.Sprintf("Wire format of the %s server message", name)
		if err := writeSchema(filepath.Join(outDir, name+".schema.json"), schema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write schema for %s: %v\n", name, err)
			os.Exit(1)
		}
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
