package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gymflow/server/internal/client"
	"github.com/gymflow/server/internal/lockout"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "API base URL")
	username := flag.String("user", "", "username")
	password := flag.String("password", os.Getenv("GYM_PASSWORD"), "password or license key (default $GYM_PASSWORD)")
	panel := flag.String("panel", "client", "panel: client, instructor or admin")
	device := flag.String("device", "", "device description")
	statePath := flag.String("state", "", "lockout state file (default in the user config dir)")
	wait := flag.Bool("wait", false, "wait out an active lockout instead of exiting")
	flag.Parse()

	if *username == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	path := *statePath
	if path == "" {
		var err error
		if path, err = lockout.DefaultPath(); err != nil {
			fail("could not locate the lockout state file: %v", err)
		}
	}
	guard, err := lockout.NewGuard(lockout.NewFileStore(path))
	if err != nil {
		fail("could not load the lockout state: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *device == "" {
		if host, err := os.Hostname(); err == nil {
			*device = host
		}
	}

	g := client.NewGuarded(client.New(*baseURL, 15*time.Second), guard)
	req := client.LoginRequest{Username: *username, Password: *password, DeviceInfo: *device, PanelType: *panel}

	for {
		resp, err := g.Login(ctx, req)
		if err == nil {
			printLogin(resp)
			return
		}

		var locked *lockout.LockedError
		if !errors.As(err, &locked) {
			fail("%s", client.FriendlyMessage(client.CategoryOf(err)))
		}
		if !isLocalRejection(err) {
			fmt.Fprintln(os.Stderr, client.FriendlyMessage(client.CategoryOf(err)))
		}
		fmt.Fprintf(os.Stderr, "Muitas tentativas. Aguarde %s para tentar novamente.\n", formatRemaining(locked.Remaining))
		if !*wait {
			os.Exit(1)
		}
		err = guard.Countdown(ctx, func(remaining time.Duration) {
			fmt.Fprintf(os.Stderr, "\r%s ", formatRemaining(remaining))
		})
		fmt.Fprintln(os.Stderr)
		if err != nil {
			os.Exit(1)
		}
	}
}

// isLocalRejection reports whether the guard refused the attempt without
// calling the server
func isLocalRejection(err error) bool {
	var apiErr *client.APIError
	var netErr *client.NetworkError
	return !errors.As(err, &apiErr) && !errors.As(err, &netErr)
}

func printLogin(resp *client.LoginResponse) {
	fmt.Printf("Bem-vindo, %s (%s)\n", resp.User.FullName, resp.User.Role)
	if resp.License == nil {
		return
	}
	d, bounded := resp.License.TimeRemaining()
	if !bounded {
		fmt.Printf("Licença %s: sem expiração\n", resp.License.Type)
		return
	}
	fmt.Printf("Licença %s: %s restantes\n", resp.License.Type, formatRemaining(d))
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
