package main

import "github.com/SHAIKYASIR/skillsync/internal/ctl"

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctl.Execute(version, commit)
}
