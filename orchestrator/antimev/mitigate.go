// Package antimev applies the anti-front-running mitigations to bundle
// plans: a deterministic per-epoch salt, a bounded dispatch jitter, and
// optional decoy templates. Mitigation is metadata-only; the semantic
// to/data/value fields of every template are left untouched.
package antimev

import (
	"encoding/hex"
	"hash/fnv"
	"math"
	"strconv"

	"github.com/dchisholm125/kestrel-hq-sub001/config/features"
	"github.com/dchisholm125/kestrel-hq-sub001/encoding/bytesutil"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/bundle"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/tuning"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "antimev")

// SaltMetadataKey is the template metadata entry carrying the salt.
const SaltMetadataKey = "salt"

// maxDecoys bounds appended decoy templates regardless of decoyPct.
const maxDecoys = 2

// Opts identifies the mitigation subject.
type Opts struct {
	IntentID string
	CorrID   string
	NowMs    int64
}

// Mitigate returns a mitigated copy of the plan: the salt is attached to
// every template's metadata, NotBeforeMs carries the jitter, and decoys are
// appended when enabled. The input plan is not modified.
func Mitigate(plan *bundle.Plan, opts Opts, tun tuning.AntiMEV) *bundle.Plan {
	epochMs := tun.EpochMs
	if epochMs < 1000 {
		epochMs = 1000
	}
	epochBucket := opts.NowMs / epochMs
	salt := Salt(opts.IntentID, opts.CorrID, epochBucket)

	out := *plan
	out.TxTemplates = make([]bundle.TxTemplate, len(plan.TxTemplates))
	for i, tpl := range plan.TxTemplates {
		md := make(map[string]string, len(tpl.Metadata)+1)
		for k, v := range tpl.Metadata {
			md[k] = v
		}
		md[SaltMetadataKey] = salt
		tpl.Metadata = md
		out.TxTemplates[i] = tpl
	}

	jitter := jitterMs(salt, tun.JitterMaxMs)
	notBefore := opts.NowMs
	if jitter > 0 {
		notBefore += jitter
	}
	if notBefore >= out.DeadlineMs {
		notBefore = out.DeadlineMs - 1
	}
	out.NotBeforeMs = notBefore

	if tun.DecoyPct > 0 && features.Get().EnableDecoys {
		n := int(math.Floor(float64(len(plan.TxTemplates)) * tun.DecoyPct))
		if n > maxDecoys {
			n = maxDecoys
		}
		for i := 0; i < n; i++ {
			out.TxTemplates = append(out.TxTemplates, bundle.TxTemplate{
				Kind:     bundle.KindDecoy,
				Atomic:   out.Atomic,
				Metadata: map[string]string{SaltMetadataKey: salt},
			})
		}
		if n > 0 {
			log.WithFields(logrus.Fields{
				"intentID": opts.IntentID,
				"decoys":   n,
			}).Debug("Appended decoy templates")
		}
	}
	return &out
}

// Salt derives the stable 128-bit tag for an (intent, epoch) pair: four
// 32-bit FNV-1a words over the intent id, the correlation id, the epoch
// bucket, and their joined form, hex encoded.
func Salt(intentID, corrID string, epochBucket int64) string {
	bucket := strconv.FormatInt(epochBucket, 10)
	words := []uint32{
		fnv32a(intentID),
		fnv32a(corrID),
		fnv32a(bucket),
		fnv32a(intentID + ":" + corrID + ":" + bucket),
	}
	buf := make([]byte, 0, 16)
	for _, w := range words {
		buf = append(buf, bytesutil.Uint32ToBytesBigEndian(w)...)
	}
	return hex.EncodeToString(buf)
}

// jitterMs maps the low 16 bits of the salt onto [-jitterMaxMs, +jitterMaxMs].
func jitterMs(salt string, jitterMaxMs int64) int64 {
	if jitterMaxMs <= 0 {
		return 0
	}
	raw, err := hex.DecodeString(salt)
	if err != nil || len(raw) < 2 {
		return 0
	}
	low16 := uint16(raw[len(raw)-2])<<8 | uint16(raw[len(raw)-1])
	scaled := (float64(low16)/float64(0xFFFF))*2 - 1
	return int64(math.Round(scaled * float64(jitterMaxMs)))
}

func fnv32a(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
