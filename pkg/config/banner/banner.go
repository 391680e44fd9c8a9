package banner

import (
	"fmt"
	"io"
	"os"

	"github.com/SHAIKYASIR/skillsync/pkg/config"
)

const banner = `
 ____  _    _ _ _ ____
/ ___|| | _(_) | / ___| _   _ _ __   ___
\___ \| |/ / | | \___ \| | | | '_ \ / __|
 ___) |   <| | | |___) | |_| | | | | (__
|____/|_|\_\_|_|_|____/ \__, |_| |_|\___|
                        |___/
`

// PrintWithEff prints the startup banner and a production readiness summary.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	Fprint(os.Stdout, eff, version)
}

// Fprint writes the banner to w.
func Fprint(w io.Writer, eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "Listen:   %s\n", addr)
	fmt.Fprintf(w, "DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	fmt.Fprintf(w, "Config:   %s\n", src)

	fmt.Fprintln(w, "\n== Production? =================================================")
	be, fe, ak := 0, 0, 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	keyLine(w, "Backend", be, "required for server-side callers")
	keyLine(w, "Frontend", fe, "required for browser clients")
	keyLine(w, "Admin", ak, "required for admin tooling")

	if eff.Config == nil {
		return
	}
	if eff.Config.Activity.AutoLogEnabled() {
		fmt.Fprintln(w, "- Activity auto-log: enabled")
	} else {
		fmt.Fprintln(w, "- Activity auto-log: disabled")
	}
	if eff.Config.Maintenance.Enabled {
		fmt.Fprintf(w, "- Maintenance: enabled (cron=%s)\n", eff.Config.Maintenance.Cron)
	} else {
		fmt.Fprintln(w, "- Maintenance: disabled")
	}
	fmt.Fprintf(w, "- Live queries: buffer=%d max_subs=%d\n",
		eff.Config.Fanout.SessionBuffer, eff.Config.Fanout.MaxSubscriptionsPerSession)
}

func keyLine(w io.Writer, name string, n int, hint string) {
	if n > 0 {
		fmt.Fprintf(w, "- %s API keys: OK (%d)\n", name, n)
		return
	}
	fmt.Fprintf(w, "- %s API keys: MISSING (%s)\n", name, hint)
}
