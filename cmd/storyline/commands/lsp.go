package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/storyline/errors"
	"github.com/teranos/storyline/logger"
	"github.com/teranos/storyline/lsp"
)

// LspCmd serves the Language Server Protocol
var LspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Serve the Language Server Protocol",
	Long: `Serve entity hover, completion, definition, code lenses and diagnostics
to an editor.

By default the server speaks LSP over stdin/stdout, which is what editor
extensions launch. With --ws it listens for browser editors over WebSocket
at /lsp instead.

Examples:
  storyline lsp                        # stdio, launched by the editor
  storyline lsp --ws=127.0.0.1:7870    # WebSocket for a browser editor
  storyline lsp --ws                   # WebSocket on lsp.ws_addr`,
	RunE: runLsp,
}

var lspWSAddr string

func init() {
	LspCmd.Flags().StringVar(&lspWSAddr, "ws", "", "Serve LSP over WebSocket on this address instead of stdio (\"default\" uses lsp.ws_addr)")
	LspCmd.Flags().Lookup("ws").NoOptDefVal = "default"
}

func runLsp(cmd *cobra.Command, args []string) error {
	svc, err := newServices()
	if err != nil {
		return err
	}
	log := commandLogger("lsp")

	newHandler := func() *lsp.Handler {
		return lsp.NewHandler(lsp.Config{
			Detector:     svc.detector,
			Contexts:     svc.contexts,
			Diagnostics:  svc.newGenerator(false),
			MaxDocuments: svc.cfg.LSP.MaxDocuments,
			Logger:       logger.ComponentLogger("lsp"),
		})
	}

	wd, _ := os.Getwd()
	stopWatch := svc.startWatcher(wd, nil)
	defer stopWatch()

	if lspWSAddr == "" {
		log.Infow("Serving LSP over stdio")
		return lsp.RunStdio(newHandler())
	}

	addr := lspWSAddr
	if addr == "default" {
		addr = svc.cfg.LSP.WSAddr
	}
	mux := http.NewServeMux()
	mux.Handle("/lsp", lsp.WebSocketHandler(newHandler, svc.cfg.LSP.AllowedOrigins, logger.ComponentLogger("lsp.ws")))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()
	pterm.Info.Printf("LSP listening on ws://%s/lsp\n", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "LSP WebSocket server failed")
	case <-sigChan:
		pterm.Info.Println("Shutting down LSP server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "shutdown error")
		}
		pterm.Success.Println("LSP server stopped cleanly")
		return nil
	}
}
