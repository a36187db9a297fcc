// Package commitment implements GroveDB's CommitmentTree subtree (spec
// §4.13): a BulkAppend log of ciphertext records coexisting with a
// depth-32 incremental Merkle frontier over the records' leaf
// commitments, combined into one Merk child-hash root.
package commitment

import (
	"github.com/dashpay/grovedb/bulkappend"
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage"
)

var frontierKey = []byte("__ct_data__")

// PrimaryMemoProfile is the ciphertext payload size (bytes) of the
// primary memo profile named in spec §4.13.
const PrimaryMemoProfile = 216

// Tree is one CommitmentTree subtree, addressed by its subtree prefix.
// chunk_power and payload_size are owned by the containing parent
// Element, mirroring BulkAppend's own convention (spec §4.12).
type Tree struct {
	store       storage.Context
	prefix      hash.Digest
	payloadSize int

	log      *bulkappend.Tree
	frontier *Frontier
}

// Open loads the CommitmentTree subtree at prefix with the given chunk
// power and ciphertext payload size.
func Open(store storage.Context, prefix hash.Digest, chunkPower uint8, payloadSize int) (*Tree, cost.OperationCost, error) {
	c := cost.OperationCost{}
	log, logCost, err := bulkappend.Open(store, prefix, chunkPower)
	if err != nil {
		return nil, c, err
	}
	c = c.Add(logCost)

	raw, err := store.Get(storage.CFDefault, prefix, frontierKey)
	if err != nil {
		return nil, c, groveerr.Wrap("commitment.Open", groveerr.StorageError, err)
	}
	c.AddSeek()

	frontier := &Frontier{}
	if raw != nil {
		c.AddLoadedBytes(uint64(len(raw)))
		frontier, err = DecodeFrontier(raw)
		if err != nil {
			return nil, c, groveerr.Wrap("commitment.Open", groveerr.CorruptedStorage, err)
		}
	}

	return &Tree{store: store, prefix: prefix, payloadSize: payloadSize, log: log, frontier: frontier}, c, nil
}

// Count returns the number of records appended so far (spec "Ops: count").
func (t *Tree) Count() uint64 { return t.log.TotalCount() }

// Anchor returns the frontier's current root (spec "Ops: anchor").
func (t *Tree) Anchor() hash.Digest { return t.frontier.Root() }

// StateRoot computes the combined root flowing as the Merk child hash
// (spec §6.2, §4.13): Blake3(b"ct_state" || frontier_root || bulk_state_root).
func (t *Tree) StateRoot() hash.Digest {
	return hash.CommitmentTreeRoot(t.frontier.Root(), t.log.StateRoot())
}

func (t *Tree) writeFrontier(c *cost.OperationCost) error {
	data := t.frontier.Encode()
	if err := t.store.Put(storage.CFDefault, t.prefix, frontierKey, data); err != nil {
		return groveerr.Wrap("commitment.writeFrontier", groveerr.StorageError, err)
	}
	c.ApplyInsert(len(data))
	return nil
}

// Append records one ciphertext entry (spec §4.13 "Append"): appends
// cmx||rho||ciphertext_payload to the BulkAppend log, then inserts cmx
// into the frontier. payload must be exactly payloadSize bytes.
func (t *Tree) Append(cmx, rho hash.Digest, payload []byte) (uint64, cost.OperationCost, error) {
	c := cost.OperationCost{}
	if len(payload) != t.payloadSize {
		return 0, c, groveerr.New("commitment.Append", groveerr.InvalidPayloadSize)
	}

	entry := make([]byte, 0, 64+len(payload))
	entry = append(entry, cmx[:]...)
	entry = append(entry, rho[:]...)
	entry = append(entry, payload...)

	pos, logCost, err := t.log.Append(entry)
	if err != nil {
		return 0, c, err
	}
	c = c.Add(logCost)

	merges := t.frontier.Append(cmx)
	c.AddSinsemillaHashCalls(uint32(FrontierDepth + merges))

	if err := t.writeFrontier(&c); err != nil {
		return 0, c, err
	}
	return pos, c, nil
}

// GetValue returns the cmx/rho/payload triple recorded at position (spec
// "Ops: get_value(position) (via BulkAppend)").
func (t *Tree) GetValue(position uint64) (cmx, rho hash.Digest, payload []byte, c cost.OperationCost, err error) {
	raw, logCost, err := t.log.GetValue(position)
	c = logCost
	if err != nil {
		return hash.Null, hash.Null, nil, c, err
	}
	if len(raw) != 64+t.payloadSize {
		return hash.Null, hash.Null, nil, c, groveerr.New("commitment.GetValue", groveerr.CorruptedStorage)
	}
	copy(cmx[:], raw[:32])
	copy(rho[:], raw[32:64])
	payload = raw[64:]
	return cmx, rho, payload, c, nil
}
