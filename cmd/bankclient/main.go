// Command bankclient is the interactive terminal client for the bank RPC
// runtime (spec §1: an external collaborator over the invoker interface;
// spec §6.3 for its CLI surface).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bankrpc/client"
	"bankrpc/protocol"
)

// inputDriver is the "user-input driver" the spec describes as an
// external collaborator: it produces typed field values from whatever
// source the frontend chooses. stdinDriver is the reference terminal
// implementation.
type inputDriver interface {
	// readLine returns the raw line, and false if the user cancelled
	// (entered "q"/"Q", entered an empty line, or closed stdin).
	readLine(prompt string) (string, bool)
}

type stdinDriver struct {
	scanner *bufio.Scanner
}

func newStdinDriver() *stdinDriver {
	return &stdinDriver{scanner: bufio.NewScanner(os.Stdin)}
}

func (d *stdinDriver) readLine(prompt string) (string, bool) {
	fmt.Print(prompt)
	if !d.scanner.Scan() {
		return "", false
	}
	line := strings.TrimSpace(d.scanner.Text())
	if line == "" || strings.EqualFold(line, "q") {
		return "", false
	}
	return line, true
}

func (d *stdinDriver) readInt(prompt string) (int, bool) {
	line, ok := d.readLine(prompt)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		fmt.Println("invalid number")
		return 0, false
	}
	return n, true
}

func (d *stdinDriver) readFloat(prompt string) (float64, bool) {
	line, ok := d.readLine(prompt)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Println("invalid number")
		return 0, false
	}
	return f, true
}

func (d *stdinDriver) readCurrency() (protocol.Currency, bool) {
	for {
		line, ok := d.readLine("currency (CNY/SGD, or 'q' to cancel): ")
		if !ok {
			return 0, false
		}
		switch strings.ToUpper(line) {
		case "CNY":
			return protocol.CurrencyCNY, true
		case "SGD":
			return protocol.CurrencySGD, true
		default:
			fmt.Println("invalid currency, enter CNY or SGD")
		}
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	server := flag.String("server", "127.0.0.1", "server IPv4 address")
	port := flag.Int("port", 9000, "server UDP port")
	sem := flag.String("sem", "atmost", "invocation semantics: atmost or atleast")
	timeoutMs := flag.Int("timeout", 500, "per-attempt timeout in milliseconds")
	retry := flag.Int("retry", 5, "retry count")
	logLevel := flag.String("log-level", "info", "zap log level: debug, info, warn, error")
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bankclient: bad --log-level: %v\n", err)
		return 1
	}
	defer logger.Sync()

	addr := &net.UDPAddr{IP: net.ParseIP(*server), Port: *port}
	if addr.IP == nil {
		fmt.Fprintf(os.Stderr, "bankclient: invalid --server address %q\n", *server)
		return 1
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		logger.Error("failed to open socket", zap.Error(err))
		return 1
	}
	defer conn.Close()

	inv := client.NewInvoker(conn, client.Config{
		Timeout:    time.Duration(*timeoutMs) * time.Millisecond,
		RetryCount: *retry,
		AtMostOnce: strings.EqualFold(*sem, "atmost") || strings.EqualFold(*sem, "at-most-once"),
	}, logger)

	fmt.Println("========================================")
	fmt.Println("   Bank RPC Client")
	fmt.Println("========================================")
	fmt.Printf("server=%s:%d sem=%s timeout=%dms retry=%d\n\n", *server, *port, *sem, *timeoutMs, *retry)

	runMenu(inv, newStdinDriver())
	return 0
}

func runMenu(inv *client.Invoker, in *stdinDriver) {
	for {
		fmt.Println("\n== Menu ==")
		fmt.Println("1) OPEN account")
		fmt.Println("2) CLOSE account")
		fmt.Println("3) DEPOSIT (non-idempotent)")
		fmt.Println("4) WITHDRAW (non-idempotent)")
		fmt.Println("5) QUERY balance (idempotent)")
		fmt.Println("6) TRANSFER (non-idempotent)")
		fmt.Println("7) MONITOR register (callback)")
		fmt.Println("0) EXIT")

		choice, ok := in.readLine("Choose: ")
		if !ok {
			fmt.Println("Bye.")
			return
		}
		switch choice {
		case "0":
			fmt.Println("Bye.")
			return
		case "1":
			handleOpen(inv, in)
		case "2":
			handleClose(inv, in)
		case "3":
			handleDeposit(inv, in)
		case "4":
			handleWithdraw(inv, in)
		case "5":
			handleQueryBalance(inv, in)
		case "6":
			handleTransfer(inv, in)
		case "7":
			handleMonitor(inv, in)
		default:
			fmt.Println("Unknown option")
		}
	}
}

func reportNetworkError(err error) {
	if err == client.ErrNoReply {
		fmt.Println("communication error: no reply from server")
		return
	}
	fmt.Printf("communication error: %v\n", err)
}

func reportStatus(status protocol.Status) {
	fmt.Printf("failed, status=%s\n", status)
}

func handleOpen(inv *client.Invoker, in *stdinDriver) {
	name, ok := in.readLine("name (or 'q' to cancel): ")
	if !ok {
		return
	}
	password, ok := in.readLine("password (1..16 chars, or 'q' to cancel): ")
	if !ok {
		return
	}
	currency, ok := in.readCurrency()
	if !ok {
		return
	}
	initial, ok := in.readFloat("initial balance (or 'q' to cancel): ")
	if !ok {
		return
	}
	if initial < 0 {
		fmt.Println("balance cannot be negative")
		return
	}

	w := protocol.NewWriter()
	w.PutString(name)
	w.PutPassword16(password)
	w.PutU16(uint16(currency))
	w.PutDouble(initial)

	reply, err := inv.Call(protocol.OpOpen, w.Bytes())
	if err != nil {
		reportNetworkError(err)
		return
	}
	if reply.Header.Status != protocol.StatusOK {
		reportStatus(reply.Header.Status)
		return
	}
	r := protocol.NewReader(reply.Body)
	accountNo, _ := r.I32()
	balance, _ := r.Double()
	fmt.Printf("OPEN OK. accountNo=%d balance=%g\n", accountNo, balance)
}

func handleClose(inv *client.Invoker, in *stdinDriver) {
	name, ok := in.readLine("name (or 'q' to cancel): ")
	if !ok {
		return
	}
	accountNo, ok := in.readInt("accountNo (or 'q' to cancel): ")
	if !ok {
		return
	}
	password, ok := in.readLine("password (or 'q' to cancel): ")
	if !ok {
		return
	}

	w := protocol.NewWriter()
	w.PutString(name)
	w.PutI32(int32(accountNo))
	w.PutPassword16(password)

	reply, err := inv.Call(protocol.OpClose, w.Bytes())
	if err != nil {
		reportNetworkError(err)
		return
	}
	if reply.Header.Status != protocol.StatusOK {
		reportStatus(reply.Header.Status)
		return
	}
	r := protocol.NewReader(reply.Body)
	msg, _ := r.String()
	fmt.Printf("CLOSE OK: %s\n", msg)
}

func handleDeposit(inv *client.Invoker, in *stdinDriver) {
	name, accountNo, password, currency, amount, ok := readMutationFields(in, "DEPOSIT")
	if !ok {
		return
	}

	w := protocol.NewWriter()
	w.PutString(name)
	w.PutI32(int32(accountNo))
	w.PutPassword16(password)
	w.PutU16(uint16(currency))
	w.PutDouble(amount)

	reply, err := inv.Call(protocol.OpDeposit, w.Bytes())
	if err != nil {
		reportNetworkError(err)
		return
	}
	if reply.Header.Status != protocol.StatusOK {
		reportStatus(reply.Header.Status)
		return
	}
	r := protocol.NewReader(reply.Body)
	newBalance, _ := r.Double()
	fmt.Printf("DEPOSIT OK. new balance=%g\n", newBalance)
}

func handleWithdraw(inv *client.Invoker, in *stdinDriver) {
	name, accountNo, password, currency, amount, ok := readMutationFields(in, "WITHDRAW")
	if !ok {
		return
	}

	w := protocol.NewWriter()
	w.PutString(name)
	w.PutI32(int32(accountNo))
	w.PutPassword16(password)
	w.PutU16(uint16(currency))
	w.PutDouble(amount)

	reply, err := inv.Call(protocol.OpWithdraw, w.Bytes())
	if err != nil {
		reportNetworkError(err)
		return
	}
	if reply.Header.Status != protocol.StatusOK {
		reportStatus(reply.Header.Status)
		return
	}
	r := protocol.NewReader(reply.Body)
	newBalance, _ := r.Double()
	fmt.Printf("WITHDRAW OK. new balance=%g\n", newBalance)
}

// readMutationFields collects the shared name/accountNo/password/currency/amount
// prompt sequence used by DEPOSIT and WITHDRAW.
func readMutationFields(in *stdinDriver, label string) (name string, accountNo int, password string, currency protocol.Currency, amount float64, ok bool) {
	fmt.Printf("=== %s ===\n", label)
	if name, ok = in.readLine("name (or 'q' to cancel): "); !ok {
		return
	}
	if accountNo, ok = in.readInt("accountNo (or 'q' to cancel): "); !ok {
		return
	}
	if password, ok = in.readLine("password (or 'q' to cancel): "); !ok {
		return
	}
	if currency, ok = in.readCurrency(); !ok {
		return
	}
	if amount, ok = in.readFloat("amount (or 'q' to cancel): "); !ok {
		return
	}
	if amount <= 0 {
		fmt.Println("amount must be positive")
		ok = false
	}
	return
}

func handleQueryBalance(inv *client.Invoker, in *stdinDriver) {
	name, ok := in.readLine("name (or 'q' to cancel): ")
	if !ok {
		return
	}
	accountNo, ok := in.readInt("accountNo (or 'q' to cancel): ")
	if !ok {
		return
	}
	password, ok := in.readLine("password (or 'q' to cancel): ")
	if !ok {
		return
	}

	w := protocol.NewWriter()
	w.PutString(name)
	w.PutI32(int32(accountNo))
	w.PutPassword16(password)

	reply, err := inv.Call(protocol.OpQueryBalance, w.Bytes())
	if err != nil {
		reportNetworkError(err)
		return
	}
	if reply.Header.Status != protocol.StatusOK {
		reportStatus(reply.Header.Status)
		return
	}
	r := protocol.NewReader(reply.Body)
	currency, _ := r.U16()
	balance, _ := r.Double()
	fmt.Printf("BALANCE: %g %s\n", balance, protocol.Currency(currency))
}

func handleTransfer(inv *client.Invoker, in *stdinDriver) {
	name, ok := in.readLine("name (or 'q' to cancel): ")
	if !ok {
		return
	}
	fromAcc, ok := in.readInt("fromAccountNo (or 'q' to cancel): ")
	if !ok {
		return
	}
	password, ok := in.readLine("password (or 'q' to cancel): ")
	if !ok {
		return
	}
	toAcc, ok := in.readInt("toAccountNo (or 'q' to cancel): ")
	if !ok {
		return
	}
	currency, ok := in.readCurrency()
	if !ok {
		return
	}
	amount, ok := in.readFloat("amount (or 'q' to cancel): ")
	if !ok {
		return
	}
	if amount <= 0 {
		fmt.Println("amount must be positive")
		return
	}

	w := protocol.NewWriter()
	w.PutString(name)
	w.PutI32(int32(fromAcc))
	w.PutPassword16(password)
	w.PutI32(int32(toAcc))
	w.PutU16(uint16(currency))
	w.PutDouble(amount)

	reply, err := inv.Call(protocol.OpTransfer, w.Bytes())
	if err != nil {
		reportNetworkError(err)
		return
	}
	if reply.Header.Status != protocol.StatusOK {
		reportStatus(reply.Header.Status)
		return
	}
	r := protocol.NewReader(reply.Body)
	fromBal, _ := r.Double()
	toBal, _ := r.Double()
	fmt.Printf("TRANSFER OK. fromBal=%g toBal=%g\n", fromBal, toBal)
}

func handleMonitor(inv *client.Invoker, in *stdinDriver) {
	seconds, ok := in.readInt("seconds to monitor (or 'q' to cancel): ")
	if !ok {
		return
	}
	if seconds <= 0 || seconds > 65535 {
		fmt.Println("seconds must be in [1, 65535]")
		return
	}

	w := protocol.NewWriter()
	w.PutU16(uint16(seconds))

	reply, err := inv.Call(protocol.OpMonitorRegister, w.Bytes())
	if err != nil {
		reportNetworkError(err)
		return
	}
	if reply.Header.Status != protocol.StatusOK {
		reportStatus(reply.Header.Status)
		return
	}
	r := protocol.NewReader(reply.Body)
	msg, _ := r.String()
	fmt.Printf("MONITOR OK: %s\n", msg)
	fmt.Println("blocked, waiting for callbacks...")

	inv.DrainCallbacks(time.Duration(seconds)*time.Second, func(u client.Update) {
		fmt.Printf("CALLBACK: type=%s account=%d currency=%s balance=%g info=%q\n",
			u.UpdateType, u.AccountNo, u.Currency, u.NewBalance, u.Info)
	})
	fmt.Println("monitor window elapsed")
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

var _ inputDriver = (*stdinDriver)(nil)
