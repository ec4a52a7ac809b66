package schema

import _ "embed"

// ProcwatchV1Schema contains the JSON schema for procwatch manifests.
//
//go:embed procwatch.v1.json
var ProcwatchV1Schema []byte
