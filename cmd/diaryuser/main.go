// Command diaryuser manages the accounts that may write to the diary.
//
//	diaryuser create <username> <password>
//	diaryuser passwd <username> <password>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/models"
	"github.com/fastdiary/fastdiary/services"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "diaryuser:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: diaryuser create <username> <password>")
	fmt.Fprintln(w, "       diaryuser passwd <username> <password>")
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("diaryuser", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 3 {
		usage(stderr)
		return errors.New("expected a command, a username and a password")
	}
	cmd, username, password := rest[0], rest[1], rest[2]

	cfg := config.Load()
	db, err := config.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	if err := config.Migrate(db, models.All()...); err != nil {
		return err
	}
	users := services.NewUserService(db)

	switch cmd {
	case "create":
		u, err := users.Create(username, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "created user %s (id %d)\n", u.Username, u.ID)
	case "passwd":
		if err := users.SetPassword(username, password); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return fmt.Errorf("no user named %q", username)
			}
			return err
		}
		fmt.Fprintf(stdout, "password updated for %s\n", username)
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
