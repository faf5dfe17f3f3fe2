// Package logx is a thin wrapper over log.Printf, matching the teacher's
// direct-to-stdout register (merge/service/hive_merge_tree_service.go logs
// with bare fmt.Println/fmt.Printf) rather than reaching for a structured
// logging library the pack never imports.
package logx

import (
	"log"
	"os"
)

var std = log.New(os.Stdout, "", log.LstdFlags)

func Printf(format string, args ...any) {
	std.Printf(format, args...)
}

func Println(args ...any) {
	std.Println(args...)
}

// Errorf logs an error with an "ERROR " prefix, matching the teacher's
// undecorated logging of failures from db.go/root.go.
func Errorf(format string, args ...any) {
	std.Printf("ERROR "+format, args...)
}
