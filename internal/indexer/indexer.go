// Package indexer fills the catalog from upstream accounts: player_api.php
// for Xtream Codes accounts, M3U playlists for the rest, and xmltv.php for
// guide data.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/httpclient"
	"github.com/snapetech/xc-timeshift/internal/metrics"
)

// Indexer fetches accounts. The zero value is usable: default client, one
// attempt per request, four accounts at a time, no per-account deadline.
type Indexer struct {
	Client      *http.Client
	Retry       httpclient.RetryPolicy
	Concurrency int           // accounts fetched in parallel
	Timeout     time.Duration // per account; 0 = none
	FetchGuide  bool          // also fetch xmltv.php for XC accounts
	Language    string        // preferred XMLTV title/desc language

	Logf func(format string, args ...any)
}

// Result is the outcome for one account.
type Result struct {
	Account    catalog.Account
	Streams    int
	Added      int
	Removed    int
	Programmes int
	Err        error
}

// New returns an Indexer using the default retry policy.
func New(client *http.Client, concurrency int) *Indexer {
	return &Indexer{Client: client, Retry: httpclient.DefaultRetryPolicy, Concurrency: concurrency}
}

func (ix *Indexer) client() *http.Client {
	if ix.Client != nil {
		return ix.Client
	}
	return httpclient.Default()
}

func (ix *Indexer) logf(format string, args ...any) {
	if ix.Logf != nil {
		ix.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Streams fetches one account's stream list by its type.
func (ix *Indexer) Streams(ctx context.Context, acct catalog.Account) ([]catalog.Stream, error) {
	switch acct.Type {
	case catalog.AccountXC:
		return ix.Xtream(ctx, acct)
	case catalog.AccountSTD, "":
		return ix.M3U(ctx, acct)
	}
	return nil, fmt.Errorf("account %q: unknown account type %q", acct.Name, acct.Type)
}

// Run indexes every account in cat on a bounded worker pool and writes the
// results back into cat. A failed account keeps its previous streams. The
// returned error joins the per-account failures.
func (ix *Indexer) Run(ctx context.Context, cat *catalog.Catalog) ([]Result, error) {
	accounts := cat.Snapshot().Accounts
	if len(accounts) == 0 {
		return nil, nil
	}
	size := ix.Concurrency
	if size <= 0 {
		size = 4
	}
	if size > len(accounts) {
		size = len(accounts)
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("indexer pool: %w", err)
	}
	defer pool.Release()

	results := make([]Result, len(accounts))
	var wg sync.WaitGroup
	for i, acct := range accounts {
		i, acct := i, acct
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i] = ix.indexAccount(ctx, cat, acct)
		}); err != nil {
			wg.Done()
			results[i] = Result{Account: acct, Err: err}
		}
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("account %q: %w", r.Account.Name, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (ix *Indexer) indexAccount(ctx context.Context, cat *catalog.Catalog, acct catalog.Account) Result {
	res := Result{Account: acct}
	if ix.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.Timeout)
		defer cancel()
	}
	start := time.Now()
	streams, err := ix.Streams(ctx, acct)
	if err != nil {
		ix.logf("indexer: account=%q type=%s err=%v", acct.Name, acct.Type, err)
		res.Err = err
		return res
	}
	res.Streams = len(streams)
	res.Added, res.Removed = cat.ReplaceAccountStreams(acct.ID, streams)
	label := acct.Name
	if label == "" {
		label = strconv.FormatInt(acct.ID, 10)
	}
	metrics.IndexedStreams.WithLabelValues(label).Set(float64(len(streams)))
	ix.logf("indexer: account=%q type=%s streams=%d added=%d removed=%d dur=%s",
		acct.Name, acct.Type, res.Streams, res.Added, res.Removed, time.Since(start).Round(time.Millisecond))

	if !ix.FetchGuide || acct.Type != catalog.AccountXC {
		return res
	}
	wanted := map[string]bool{}
	for _, s := range streams {
		if s.TVGID != "" {
			wanted[s.TVGID] = true
		}
	}
	if len(wanted) == 0 {
		return res
	}
	progs, err := ix.Guide(ctx, acct, wanted)
	if err != nil {
		// Streams are already in; guide data is best effort.
		ix.logf("indexer: account=%q guide err=%v", acct.Name, err)
		return res
	}
	cat.ReplaceProgrammes(progs)
	res.Programmes = len(progs)
	ix.logf("indexer: account=%q programmes=%d", acct.Name, res.Programmes)
	return res
}
