/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/disintegration/imaging"

	"shadowcaster/internal/backend"
	"shadowcaster/internal/config"
	"shadowcaster/internal/crash"
	"shadowcaster/internal/export"
	applog "shadowcaster/internal/log"
	"shadowcaster/internal/nodes"
	"shadowcaster/internal/pipeline"
	"shadowcaster/internal/shadow"
	"shadowcaster/internal/version"
)

func usage() {
	fmt.Println("shadowcaster - directional shadow compositor")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  shadowcaster version|-v|--version                     Show version")
	fmt.Println("  shadowcaster nodes                                    List available nodes")
	fmt.Println("  shadowcaster render <node> <in.png> <out.png> [k=v]   Run a node on one image")
	fmt.Println("  shadowcaster sweep <style> <in.png> <out.pdf|out.png> Render every direction of a style")
	fmt.Println("  shadowcaster serve                                    Start the HTTP render service")
	fmt.Println("  shadowcaster cache stats|evict                        Inspect or trim the render cache")
}

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(2)
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	defer func() { _ = applog.Close() }()
	l := applog.WithComponent("cli")

	args := os.Args
	command := ""
	if len(args) > 1 {
		command = args[1]
	}
	defer crash.Recover(cfg.Cache.Dir, command)
	l.Debug("start", slog.Int("args", len(args)), slog.String("command", command))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return
	case "nodes":
		exitOn(l, cmdNodes(ctx))
		return
	case "render":
		if len(args) < 5 {
			fmt.Println("render requires <node> <in.png> <out.png>")
			usage()
			os.Exit(2)
		}
		exitOn(l, cmdRender(ctx, args[2], args[3], args[4], args[5:]))
		return
	case "sweep":
		if len(args) < 5 {
			fmt.Println("sweep requires <style> <in.png> <out.pdf|out.png>")
			usage()
			os.Exit(2)
		}
		exitOn(l, cmdSweep(ctx, args[2], args[3], args[4], args[5:]))
		return
	case "serve":
		exitOn(l, cmdServe(ctx))
		return
	case "cache":
		if len(args) < 3 {
			fmt.Println("cache requires stats or evict")
			usage()
			os.Exit(2)
		}
		exitOn(l, cmdCache(ctx, args[2]))
		return
	}
	usage()
}

// exitOn reports err and exits. Configuration mistakes exit with 2, everything else with 1.
func exitOn(l *slog.Logger, err error) {
	if err == nil {
		return
	}
	l.Error("command failed", slog.Any("err", err), slog.String("kind", shadow.Kind(err)))
	fmt.Println("Error:", err)
	if errors.Is(err, shadow.ErrConfiguration) {
		os.Exit(2)
	}
	os.Exit(1)
}

func cmdNodes(ctx context.Context) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tCATEGORY\tINPUTS\tOUTPUTS")
	for _, n := range a.runner.Registry().List() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Name, n.Category, strings.Join(n.Inputs, ","), strings.Join(n.Outputs, ","))
	}
	return tw.Flush()
}

func cmdRender(ctx context.Context, node, in, out string, kv []string) error {
	params, err := parseParams(kv)
	if err != nil {
		return &shadow.ConfigurationError{Field: "params", Value: strings.Join(kv, " "), Reason: err.Error()}
	}
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	d, ok := a.runner.Registry().Lookup(node)
	if !ok {
		return &shadow.ConfigurationError{Field: "node", Value: node, Reason: "unknown node"}
	}
	if len(d.Inputs) > 1 {
		return &shadow.ConfigurationError{Field: "node", Value: node, Reason: "needs more than one input image"}
	}
	var inputs []image.Image
	if len(d.Inputs) > 0 {
		img, err := imaging.Open(in)
		if err != nil {
			return fmt.Errorf("open %s: %w", in, err)
		}
		inputs = []image.Image{img}
	}
	res, err := a.runner.Run(ctx, pipeline.Request{Node: node, Params: params, Inputs: inputs})
	if err != nil {
		return err
	}
	for i, img := range res.Images {
		path := out
		if i > 0 {
			ext := filepath.Ext(out)
			path = strings.TrimSuffix(out, ext) + "_" + res.Names[i] + ext
		}
		if err := export.WritePNG(path, img); err != nil {
			return err
		}
		fmt.Printf("%s: %dx%d\n", path, img.Rect.Dx(), img.Rect.Dy())
	}
	if res.Cached {
		fmt.Println("(from cache)")
	}
	return nil
}

func cmdSweep(ctx context.Context, styleName, in, out string, kv []string) error {
	style, err := shadow.ParseStyle(styleName)
	if err != nil {
		return err
	}
	params, err := parseParams(kv)
	if err != nil {
		return &shadow.ConfigurationError{Field: "params", Value: strings.Join(kv, " "), Reason: err.Error()}
	}
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	subject, err := imaging.Open(in)
	if err != nil {
		return fmt.Errorf("open %s: %w", in, err)
	}

	table := shadow.DefaultTable(style)
	if t, ok := a.env.Tables[style]; ok {
		table = t
	}
	steps, label := sweepSteps(table)
	render := func(ctx context.Context, step float64) (*image.NRGBA, error) {
		p := nodes.Params{}
		for k, v := range params {
			p[k] = v
		}
		p["style"] = style.String()
		p["direction"] = step
		res, err := a.runner.Run(ctx, pipeline.Request{Node: nodes.NodeDirectionalShadow, Params: p, Inputs: []image.Image{subject}})
		if err != nil {
			return nil, err
		}
		return res.Images[0], nil
	}
	start := time.Now()
	frames, err := export.DirectionSweep(ctx, render, steps, label)
	if err != nil {
		return err
	}
	imgs, labels := export.Images(frames)
	title := fmt.Sprintf("%s: %s", filepath.Base(in), style)
	if strings.EqualFold(filepath.Ext(out), ".pdf") {
		err = export.ProofSheetPDF(out, title, imgs, labels, export.PDFOptions{Columns: 4})
	} else {
		sheet, serr := export.ContactSheet(imgs, labels, 4)
		if serr != nil {
			return serr
		}
		err = export.WritePNG(out, sheet)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d frames in %s\n", out, len(frames), time.Since(start).Round(time.Millisecond))
	return nil
}

func cmdServe(ctx context.Context) error {
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	srv := backend.NewServer(backend.Config{
		Addr:     a.cfg.Server.Addr,
		Secret:   a.secret,
		TokenTTL: time.Duration(a.cfg.Server.TokenTTLMin) * time.Minute,
	}, a.runner, a.jobs)
	return srv.ListenAndServe(ctx)
}

func cmdCache(ctx context.Context, sub string) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.cache == nil {
		return errors.New("render cache is disabled or unavailable")
	}
	switch sub {
	case "stats":
		st, err := a.cache.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Path: %s\nEntries: %d\nBytes: %d / %d\n", a.cache.Path(), st.Entries, st.Bytes, st.Cap)
		return nil
	case "evict":
		n, err := a.cache.Evict(ctx, a.cache.MaxBytes())
		if err != nil {
			return err
		}
		fmt.Printf("Evicted %d entries\n", n)
		return nil
	}
	return &shadow.ConfigurationError{Field: "cache", Value: sub, Reason: "want stats or evict"}
}
