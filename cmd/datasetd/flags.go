package main

import "flag"

// commandLineFlags mirrors model/flags.go's CommandLineFlags shape: a
// struct of flag.String/flag.Bool pointers populated by flag.Parse.
type commandLineFlags struct {
	Host          *string
	Port          *string
	DataDir       *string
	DatasetDir    *string
	ServerConfig  *string
}

func initFlags() *commandLineFlags {
	f := &commandLineFlags{}
	f.Host = flag.String("host", "0.0.0.0", "API host. Default 0.0.0.0")
	f.Port = flag.String("port", "8080", "API port. Default 8080")
	f.DataDir = flag.String("datadir", "/tmp/erddap-data", "Catalog persistence directory. Default /tmp/erddap-data")
	f.DatasetDir = flag.String("datasetdir", "/tmp/erddap-datasets", "Directory of dataset YAML configs. Default /tmp/erddap-datasets")
	f.ServerConfig = flag.String("config", "", "Optional server configuration file (viper-loaded). Default none")
	flag.Parse()
	return f
}
