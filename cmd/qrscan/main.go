// qrscan is a headless scanner: it samples image frames from a directory
// (standing in for a camera feed), decodes QR codes and routes the payload
// the same way the app does, resolving product links against a running
// veritag server.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/guonaihong/gout"
	"go.uber.org/zap"

	"github.com/veritag/veritag/internal/scan"
)

var (
	frameDir = flag.String("d", ".", "directory of frame images (png/jpeg)")
	server   = flag.String("s", "http://127.0.0.1:1816", "veritag server base url")
	timeout  = flag.Duration("t", 30*time.Second, "give up after this long without a decode")
	rate     = flag.Duration("rate", scan.DefaultSampleInterval, "frame sampling interval")
)

// dirSource cycles over the image files of a directory, one per NextFrame
// call, emulating a live camera pointed at a scene.
type dirSource struct {
	files []string
	next  int
}

func newDirSource(dir string) (*dirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	sort.Strings(files)
	return &dirSource{files: files}, nil
}

func (s *dirSource) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func (s *dirSource) Close() error { return nil }

// verifyProduct asks the server whether the scanned id belongs to a known
// product, the same check a phone browser would trigger.
func verifyProduct(baseURL, id string) {
	var code int
	err := gout.GET(fmt.Sprintf("%s/p/%s", baseURL, id)).
		SetTimeout(5 * time.Second).
		Code(&code).
		Do()
	switch {
	case err != nil:
		fmt.Printf("product %s: server unreachable (%s)\n", id, err)
	case code == 200:
		fmt.Printf("product %s: GENUINE\n", id)
	default:
		fmt.Printf("product %s: NOT FOUND (status %d)\n", id, code)
	}
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopmentConfig().Build()
	zap.ReplaceGlobals(logger)

	source, err := newDirSource(*frameDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	bus := EventBus.New()
	dispatcher := scan.NewDispatcher(scan.Sinks{
		Navigate: func(id string) { verifyProduct(*server, id) },
		OpenExternal: func(url string) {
			fmt.Printf("external link: %s\n", url)
		},
		Announce: func(text string) {
			fmt.Printf("raw content: %s\n", text)
		},
		Invalid: func(raw string) {
			fmt.Printf("invalid product link: %s\n", raw)
		},
	})
	if err := dispatcher.SubscribeBus(bus); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	decoded := make(chan struct{}, 1)
	capture := scan.NewCapture(bus,
		scan.WithSampleInterval(*rate),
		scan.WithDecodeHandler(func(string) {
			select {
			case decoded <- struct{}{}:
			default:
			}
		}),
	)
	if err := capture.Start(source); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer capture.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-decoded:
	case <-time.After(*timeout):
		fmt.Fprintf(os.Stderr, "no qr code found after %s (%d frames missed)\n",
			*timeout, capture.MissCount())
		capture.Stop()
		os.Exit(1)
	case <-ctx.Done():
	}
}
