/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package
*/

package flag

import (
	"flag"
)

const (
	APIServer = "api_server"
	Pipeline  = "pipeline"
)

var (
	IsDevelopment *bool
	ServiceName   *string
)

func init() {
	IsDevelopment = flag.Bool("dev", true, "set to true if the current run is for development. default value is true")
	ServiceName = flag.String("service", APIServer, "'api_server' or 'pipeline'")
}

// ParseFlags parses all registered flags. Must be called from main, never
// from init, test binaries register their own flags after package
// initialization.
func ParseFlags() {
	flag.Parse()
}

// IsProdEnv returns true when the current run is a production run.
func IsProdEnv() bool {
	return !*IsDevelopment
}
