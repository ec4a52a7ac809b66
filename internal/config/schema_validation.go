package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	procwatchschema "github.com/Paintersrp/procwatch/schema"
)

const manifestSchemaURL = "procwatch.v1.json"

var compileManifestSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(manifestSchemaURL, bytes.NewReader(procwatchschema.ProcwatchV1Schema)); err != nil {
		return nil, fmt.Errorf("add manifest schema: %w", err)
	}
	schema, err := compiler.Compile(manifestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return schema, nil
})

// validateAgainstSchema checks the raw YAML document before it is decoded
// into File, so structural mistakes are reported with their location.
func validateAgainstSchema(doc map[string]any) error {
	schema, err := compileManifestSchema()
	if err != nil {
		return err
	}

	instance, err := toJSONValue(doc)
	if err != nil {
		return fmt.Errorf("prepare manifest for validation: %w", err)
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}
	var vErr *jsonschema.ValidationError
	if !errors.As(err, &vErr) {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return fmt.Errorf("schema validation failed:\n%s", strings.Join(schemaProblems(vErr), "\n"))
}

// toJSONValue converts YAML-decoded values into the shapes encoding/json
// produces, which is what the validator understands.
func toJSONValue(doc map[string]any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// schemaProblems flattens a validation error into sorted "- path: message"
// lines, keeping only the leaf failures.
func schemaProblems(err *jsonschema.ValidationError) []string {
	seen := make(map[string]struct{})
	var lines []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			line := fmt.Sprintf("- %s: %s", fieldPath(e.InstanceLocation), e.Message)
			if _, dup := seen[line]; !dup {
				seen[line] = struct{}{}
				lines = append(lines, line)
			}
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(err)
	sort.Strings(lines)
	return lines
}

// fieldPath turns a JSON pointer such as /processes/web/timeout into
// processes.web.timeout, and array indexes into [n].
func fieldPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return "manifest"
	}
	var b strings.Builder
	for _, segment := range strings.Split(pointer, "/") {
		segment = strings.NewReplacer("~1", "/", "~0", "~").Replace(segment)
		if isIndex(segment) {
			b.WriteString("[" + segment + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
