package authcore

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser launches the system browser at the given URL. The flow
// coordinator treats a failure here as non-fatal: the consent URL is
// logged so the user can open it by hand.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	return nil
}
