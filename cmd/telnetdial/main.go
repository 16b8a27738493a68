// Command telnetdial is a small interactive client exercising the engine
// facade end to end: it dials a host, prints decoded plaintext to stdout,
// and forwards stdin lines as outbound data.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/lmittmann/tint"

	"github.com/cannibalvox/telnetengine"
)

func printMessage(_ *telnet.Engine, text string) {
	fmt.Print(text)
}

func printError(_ *telnet.Engine, err error) {
	fmt.Fprintln(os.Stderr, warnStyle.Render("warning: "+err.Error()))
}

func printState(_ *telnet.Engine, state telnet.ConnectionState) {
	fmt.Fprintln(os.Stderr, stateStyle.Render("-- "+state.String()+" --"))
}

var (
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

func main() {
	host := flag.String("host", "", "host to dial")
	port := flag.Int("port", telnet.DefaultTelnetPort, "port to dial")
	user := flag.String("user", "", "username for regex-driven auto-login")
	pass := flag.String("pass", "", "password for regex-driven auto-login")
	loginPattern := flag.String("login-pattern", "", "regex matched against plaintext to trigger the username")
	passwordPattern := flag.String("password-pattern", "", "regex matched against plaintext to trigger the password")
	charset := flag.String("charset", "US-ASCII", "IANA charset name for decoding plaintext")
	verbose := flag.Bool("verbose", false, "emit debug-level protocol trace")
	flag.Parse()

	if *host == "" {
		log.Fatalln("telnetdial: -host is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))

	login := telnet.LoginConfig{}
	if *loginPattern != "" {
		login.LoginPattern = regexp.MustCompile(*loginPattern)
	}
	if *passwordPattern != "" {
		login.PasswordPattern = regexp.MustCompile(*passwordPattern)
	}

	engine, err := telnet.NewEngine(telnet.EngineConfig{
		Charset:  *charset,
		Login:    login,
		Username: *user,
		Password: *pass,
		Logger:   logger,
	}, telnet.EventHooks{
		Message:        []telnet.MessageHandler{printMessage},
		EncounteredErr: []telnet.ErrorHandler{printError},
		StateChange:    []telnet.StateHandler{printState},
	})
	if err != nil {
		log.Fatalln(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		engine.Close()
		cancel()
	}()

	engine.Connect(ctx, *host, *port)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		engine.SendData([]byte(strings.TrimSuffix(line, "\r\n") + "\r\n"))
	}

	engine.Close()
}
