// Package configs provides the embedded configuration template shipped
// with ctxsearch. Embedding at build time keeps 'ctxsearch init' working
// in every distribution, source builds and binary releases alike.
package configs

import _ "embed"

// ConfigTemplate is the annotated sample configuration written by
// 'ctxsearch init'. Every value in it matches the built-in defaults.
//
//go:embed ctxsearch.example.yaml
var ConfigTemplate string
