package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check capture and server prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := true

			if _, err := exec.LookPath("ffmpeg"); err != nil {
				check(false, "ffmpeg", "not found in PATH")
				ok = false
			} else {
				check(true, "ffmpeg", "installed")
			}

			if runtime.GOOS == "linux" {
				if os.Getenv("DISPLAY") == "" {
					check(false, "display", "DISPLAY is not set; screen capture needs an X session")
					ok = false
				} else {
					check(true, "display", os.Getenv("DISPLAY"))
				}
			}

			hc := &http.Client{Timeout: 3 * time.Second}
			resp, err := hc.Get(strings.TrimRight(deps.Cfg.ServerURL, "/") + "/healthz")
			if err != nil {
				check(false, "server", fmt.Sprintf("%s unreachable: %v", deps.Cfg.ServerURL, err))
				ok = false
			} else {
				resp.Body.Close()
				check(resp.StatusCode == http.StatusOK, "server", deps.Cfg.ServerURL)
			}

			if _, err := os.Stat(deps.Cfg.TokenPath); err != nil {
				check(false, "credentials", "not logged in; run: shadowcast login")
				ok = false
			} else {
				check(true, "credentials", deps.Cfg.TokenPath)
			}

			if !ok {
				return fmt.Errorf("some prerequisites are missing")
			}
			fmt.Println("\nReady to record.")
			return nil
		},
	}
}

func check(ok bool, name, detail string) {
	mark := "ok"
	if !ok {
		mark = "!!"
	}
	fmt.Printf("[%s] %-12s %s\n", mark, name, detail)
}
