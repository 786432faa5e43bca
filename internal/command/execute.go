package command

import (
	"sort"

	"github.com/okutsen/minidis/internal/resp"
	"github.com/okutsen/minidis/internal/store"
)

// okReply is the fixed "+OK" response.
const okReply = resp.SimpleString("OK")

// Get returns the scalar value stored under Key, or Null.
type Get struct {
	Key string
}

func (Get) Name() string { return "get" }

func (c Get) Execute(st *store.Store) resp.Frame {
	if v, ok := st.Get(c.Key); ok {
		return v
	}
	return resp.Null{}
}

// Set stores Value under Key.
type Set struct {
	Key   string
	Value resp.Frame
}

func (Set) Name() string { return "set" }

func (c Set) Execute(st *store.Store) resp.Frame {
	st.Set(c.Key, c.Value)
	return okReply
}

// Echo replies its message as a bulk string without touching the store.
type Echo struct {
	Message string
}

func (Echo) Name() string { return "echo" }

func (c Echo) Execute(*store.Store) resp.Frame {
	return resp.BulkString(c.Message)
}

// Ping replies PONG, or echoes its optional message.
type Ping struct {
	Message    string
	HasMessage bool
}

func (Ping) Name() string { return "ping" }

func (c Ping) Execute(*store.Store) resp.Frame {
	if c.HasMessage {
		return resp.BulkString(c.Message)
	}
	return resp.SimpleString("PONG")
}

// HGet returns the value of Field in the hash under Key, or Null.
type HGet struct {
	Key   string
	Field string
}

func (HGet) Name() string { return "hget" }

func (c HGet) Execute(st *store.Store) resp.Frame {
	if v, ok := st.HGet(c.Key, c.Field); ok {
		return v
	}
	return resp.Null{}
}

// HSet upserts Field in the hash under Key, creating the hash if absent.
type HSet struct {
	Key   string
	Field string
	Value resp.Frame
}

func (HSet) Name() string { return "hset" }

func (c HSet) Execute(st *store.Store) resp.Frame {
	st.HSet(c.Key, c.Field, c.Value)
	return okReply
}

// HGetAll returns every field-value pair of the hash under Key as a Map
// frame. Sort selects sorted field order for the assembled pair list;
// the Map frame itself always encodes in key order.
type HGetAll struct {
	Key  string
	Sort bool
}

func (HGetAll) Name() string { return "hgetall" }

func (c HGetAll) Execute(st *store.Store) resp.Frame {
	pairs := st.HGetAll(c.Key)
	if c.Sort {
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].Field < pairs[j].Field })
	}
	out := make(resp.Map, len(pairs))
	for _, p := range pairs {
		out[p.Field] = p.Value
	}
	return out
}

// HMGet returns the value for each requested field in request order,
// filling missing fields with Null.
type HMGet struct {
	Key    string
	Fields []string
}

func (HMGet) Name() string { return "hmget" }

func (c HMGet) Execute(st *store.Store) resp.Frame {
	values := st.HMGet(c.Key, c.Fields)
	out := make(resp.Array, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = resp.Null{}
		} else {
			out[i] = v
		}
	}
	return out
}

// SAdd inserts each member into the set under Key and replies an array
// of per-member integers: 1 if newly inserted, 0 otherwise, in input
// order.
type SAdd struct {
	Key     string
	Members []string
}

func (SAdd) Name() string { return "sadd" }

func (c SAdd) Execute(st *store.Store) resp.Frame {
	added := st.SAdd(c.Key, c.Members...)
	out := make(resp.Array, len(added))
	for i, ok := range added {
		if ok {
			out[i] = resp.Integer(1)
		} else {
			out[i] = resp.Integer(0)
		}
	}
	return out
}

// SIsMember replies 1 if Member is in the set under Key, else 0. An
// absent key behaves as an empty set.
type SIsMember struct {
	Key    string
	Member string
}

func (SIsMember) Name() string { return "sismember" }

func (c SIsMember) Execute(st *store.Store) resp.Frame {
	if st.SIsMember(c.Key, c.Member) {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

// Unrecognized is any syntactically valid command whose name is not in
// the dispatch table. Executing it is a no-op that replies OK.
type Unrecognized struct{}

func (Unrecognized) Name() string { return "unrecognized" }

func (Unrecognized) Execute(*store.Store) resp.Frame {
	return okReply
}
