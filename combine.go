package aggregator

import (
	"context"

	"github.com/go-sif/graggr/transport"
	"github.com/hashicorp/go-multierror"
)

// combineAndFinalize is the global combiner (component D): a two-phase
// protocol over the transport collaborator. working must already hold this
// machine's locally-folded sum. Every machine gathers to the coordinator,
// the coordinator combines and broadcasts, and every machine finalizes
// against the now-identical sum before clearing it.
func combineAndFinalize(ctx context.Context, working *Reduction, t transport.Transport) error {
	local, err := working.ExportValue()
	if err != nil {
		return err
	}
	localWire, err := compressSnapshot(local)
	if err != nil {
		return err
	}
	gatheredWire, err := t.Gather(ctx, localWire)
	if err != nil {
		return err
	}

	var broadcastWire []byte
	if t.ProcessID() == 0 {
		combined := working.CloneEmpty()
		var merged error
		for _, wire := range gatheredWire {
			snapshot, decErr := decompressSnapshot(wire)
			if decErr != nil {
				merged = multierror.Append(merged, decErr)
				continue
			}
			if mergeErr := combined.MergeFromSerialized(snapshot); mergeErr != nil {
				merged = multierror.Append(merged, mergeErr)
			}
		}
		if merged != nil {
			return merged
		}
		combinedSnapshot, exportErr := combined.ExportValue()
		if exportErr != nil {
			return exportErr
		}
		broadcastWire, err = compressSnapshot(combinedSnapshot)
		if err != nil {
			return err
		}
	}

	finalWire, err := t.Broadcast(ctx, broadcastWire)
	if err != nil {
		return err
	}
	finalSnapshot, err := decompressSnapshot(finalWire)
	if err != nil {
		return err
	}
	if err := working.OverwriteFromSerialized(finalSnapshot); err != nil {
		return err
	}
	working.Finalize(ctx)
	working.Clear()
	return nil
}
