// Package config loads the runtime settings of the checkout SDK from the
// environment and optional .env files, and provides validation and defaulting
// helpers mirroring the functional options of the root package.
package config
