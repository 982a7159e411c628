package audit

import (
	"context"
	"testing"

	"github.com/matryer/is"
)

func TestRecordAndRecent(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	log, err := New(NewSQLiteConnector(ctx))
	is.NoErr(err)

	is.NoErr(log.Record(ctx, 1, 42, "uuid-1", EventRegistered))
	is.NoErr(log.Record(ctx, 1, 42, "uuid-1", EventSchemaCommitted))
	is.NoErr(log.Record(ctx, 2, 43, "uuid-2", EventRegistered))

	events, err := log.Recent(ctx, 2)
	is.NoErr(err)
	is.Equal(len(events), 2)
	is.Equal(events[0].Kind, EventRegistered)
	is.Equal(events[0].DeviceID, uint64(43))
	is.Equal(events[1].Kind, EventSchemaCommitted)
}

func TestRecentRespectsLimit(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	log, err := New(NewSQLiteConnector(ctx))
	is.NoErr(err)

	for i := 0; i < 5; i++ {
		is.NoErr(log.Record(ctx, uint64(i), uint64(i), "uuid", EventUnregistered))
	}

	events, err := log.Recent(ctx, 3)
	is.NoErr(err)
	is.Equal(len(events), 3)
}
