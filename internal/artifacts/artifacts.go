package artifacts

import _ "embed"

// Default configuration written by `shadowfs init` and used when no
// configuration file is found.

//go:embed default/shadowfs.yaml
var DefaultConfig []byte

// Sample batch file written next to the configuration by `shadowfs init`.

//go:embed default/ops.yaml
var SampleOps []byte
