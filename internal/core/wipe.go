package core

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// wipeErrorBodyLimit caps how much of an error response body is included in
// the returned error, keeping messages readable when the server responds with
// a large JSON payload.
const wipeErrorBodyLimit = 2048

// wipeData deletes all data streams and indices on the instance's server,
// leaving it empty for the next consumer. Data streams are deleted first:
// their backing indices cannot be removed by a plain index delete, and
// removing the stream takes the backing indices with it. The remaining
// regular indices are then deleted with a wildcard.
//
// Cluster-level state (index templates, ingest pipelines, persistent
// settings) is not touched. Instances are configured with
// action.destructive_requires_name=false, so the wildcard deletes are
// accepted by the server.
func (i *Instance) wipeData(ctx context.Context) error {
	client, err := i.Client()
	if err != nil {
		return fmt.Errorf("build cleanup client: %w", err)
	}

	res, err := client.Indices.DeleteDataStream([]string{"*"},
		client.Indices.DeleteDataStream.WithContext(ctx),
		client.Indices.DeleteDataStream.WithExpandWildcards("all"),
	)
	if err != nil {
		return fmt.Errorf("delete data streams: %w", err)
	}
	if err := drainResponse(res, "delete data streams"); err != nil {
		return err
	}

	res, err = client.Indices.Delete([]string{"*"},
		client.Indices.Delete.WithContext(ctx),
		client.Indices.Delete.WithExpandWildcards("open,closed"),
		client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("delete indices: %w", err)
	}
	if err := drainResponse(res, "delete indices"); err != nil {
		return err
	}

	i.log.Debug("wiped data streams and indices")
	return nil
}

// drainResponse consumes and closes an API response, converting an error
// status into a Go error. Draining the body keeps the underlying HTTP
// connection reusable.
func drainResponse(res *esapi.Response, op string) error {
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, wipeErrorBodyLimit))
		return fmt.Errorf("%s: %s: %s", op, res.Status(), bytes.TrimSpace(body))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
