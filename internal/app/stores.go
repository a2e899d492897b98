package app

import (
	"context"
	"fmt"

	"chimera/internal/adapters/memory"
	"chimera/internal/adapters/neo4jdb"
	"chimera/internal/adapters/redis"
	"chimera/internal/adapters/sqlite"
)

// wireStores opens the graph store and the cursor store. When both live in
// sqlite they share one database file.
func (a *App) wireStores(ctx context.Context) error {
	cfg := a.Cfg
	var idx *sqlite.Index
	openIndex := func() (*sqlite.Index, error) {
		if idx != nil {
			return idx, nil
		}
		var err error
		idx, err = sqlite.Open(cfg.Graph.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite index: %w", err)
		}
		a.onClose(idx.Close)
		return idx, nil
	}

	switch cfg.Graph.Backend {
	case "sqlite":
		i, err := openIndex()
		if err != nil {
			return err
		}
		a.Graph = i
	case "neo4j":
		g, err := neo4jdb.Open(ctx, neo4jdb.Config{
			URI:        cfg.Graph.Neo4jURI,
			User:       cfg.Graph.Neo4jUser,
			Password:   cfg.Graph.Neo4jPassword,
			Database:   cfg.Graph.Neo4jDatabase,
			VectorDims: cfg.Graph.VectorDims,
		}, a.Log.With("component", "neo4j"))
		if err != nil {
			return fmt.Errorf("open neo4j graph: %w", err)
		}
		a.onClose(g.Close)
		a.Graph = g
	case "memory":
		a.Graph = memory.NewGraph()
	default:
		return unknownBackend("CHIMERA_GRAPH_BACKEND", cfg.Graph.Backend, "sqlite", "neo4j", "memory")
	}

	switch cfg.Cursor.Backend {
	case "sqlite":
		i, err := openIndex()
		if err != nil {
			return err
		}
		a.Cursors = i.Cursors()
	case "redis":
		c, err := redis.NewCursorStore(ctx, redis.Options{
			Addr:     cfg.Cursor.RedisAddr,
			Password: cfg.Cursor.RedisPassword,
			DB:       cfg.Cursor.RedisDB,
			Key:      cfg.Cursor.RedisKey,
		}, a.Log.With("component", "redis"))
		if err != nil {
			return fmt.Errorf("open redis cursor store: %w", err)
		}
		a.onClose(c.Close)
		a.Cursors = c
	case "memory":
		a.Cursors = &memory.CursorStore{}
	default:
		return unknownBackend("CHIMERA_CURSOR_BACKEND", cfg.Cursor.Backend, "sqlite", "redis", "memory")
	}
	return nil
}
