package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tuanvm/hazeldb"
)

func main() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))

	cfgPath := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()

	cfg, err := hazeldb.LoadConfig(*cfgPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	db, err := hazeldb.Open(cfg)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("close database", "err", err)
		}
	}()

	idx, err := hazeldb.CreateUint64Index(db, "demo_index", cfg.Index.Buckets)
	if err != nil {
		slog.Error("create index", "err", err)
		os.Exit(1)
	}

	t := db.Begin()
	for k := uint64(1); k <= 100; k++ {
		if _, err := idx.Insert(t, k, k*10); err != nil {
			slog.Error("insert", "key", k, "err", err)
			os.Exit(1)
		}
	}
	slog.Info("inserted pairs", "count", 100, "buckets", idx.Size())

	for _, k := range []uint64{1, 42, 100} {
		vals, err := idx.GetValue(t, k)
		if err != nil {
			slog.Error("get", "key", k, "err", err)
			os.Exit(1)
		}
		fmt.Printf("key=%d values=%v\n", k, vals)
	}

	if ok, err := idx.Remove(t, 42, 420); err != nil || !ok {
		slog.Warn("remove", "ok", ok, "err", err)
	}
	vals, err := idx.GetValue(t, 42)
	if err != nil {
		slog.Error("get after remove", "err", err)
		os.Exit(1)
	}
	fmt.Printf("key=42 after remove values=%v\n", vals)
}
