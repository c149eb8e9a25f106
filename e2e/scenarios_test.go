package e2e_test

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bitshard/threshold/pkg/curve"
	"github.com/bitshard/threshold/pkg/envelope"
	"github.com/bitshard/threshold/pkg/errs"
	"github.com/bitshard/threshold/pkg/party"
	"github.com/bitshard/threshold/pkg/polynomial"
	"github.com/bitshard/threshold/pkg/wallet"
	"github.com/bitshard/threshold/protocols/dkg"
	"github.com/bitshard/threshold/protocols/recovery"
	"github.com/bitshard/threshold/protocols/reshare"
	"github.com/bitshard/threshold/protocols/sign"
)

// detReader is a deterministic, counter-mode-SHA256 io.Reader: same
// label in, byte-identical stream out, across any number of reads.
// Used only where a scenario needs a reproducible "random" tape rather
// than crypto/rand.
type detReader struct {
	seed []byte
	ctr  uint64
}

func newDetReader(label string) *detReader { return &detReader{seed: []byte(label)} }

func (d *detReader) Read(p []byte) (int, error) {
	out := p
	for len(out) > 0 {
		h := sha256.New()
		h.Write(d.seed)
		var ctrBytes [8]byte
		binary.BigEndian.PutUint64(ctrBytes[:], d.ctr)
		h.Write(ctrBytes[:])
		d.ctr++
		block := h.Sum(nil)
		n := copy(out, block)
		out = out[n:]
	}
	return len(p), nil
}

func transportKeys(ids party.IDSlice) (map[party.ID]*curve.Scalar, map[party.ID]*curve.Point) {
	secrets := make(map[party.ID]*curve.Scalar, len(ids))
	publics := make(map[party.ID]*curve.Point, len(ids))
	for _, id := range ids {
		s, err := curve.Random(nil)
		Expect(err).NotTo(HaveOccurred())
		secrets[id] = s
		publics[id] = s.ActOnBase()
	}
	return secrets, publics
}

func runDKG(ids party.IDSlice, threshold int, ranks party.RankSet) map[party.ID]*wallet.Config {
	secrets, publics := transportKeys(ids)
	sessionID := []byte("e2e-dkg-session")

	setups := make(map[party.ID]wallet.PartySetup, len(ids))
	for _, id := range ids {
		setups[id] = wallet.PartySetup{
			ID: id, AllParties: ids, Threshold: threshold, Ranks: ranks,
			TransportSecret: secrets[id], TransportPublic: publics,
		}
	}

	round1Out := make(map[party.ID]*dkg.Round1Output, len(ids))
	round1State := make(map[party.ID]*dkg.Round1State, len(ids))
	for _, id := range ids {
		out, state, err := dkg.Round1(setups[id], sessionID, nil)
		Expect(err).NotTo(HaveOccurred())
		round1Out[id], round1State[id] = out, state
	}

	round2State := make(map[party.ID]*dkg.Round2State, len(ids))
	sent := make(map[party.ID]map[party.ID]*envelope.Envelope, len(ids))
	for _, id := range ids {
		incoming := make(map[party.ID]*dkg.Round1Output, len(ids)-1)
		for _, other := range ids {
			if other != id {
				incoming[other] = round1Out[other]
			}
		}
		envs, state, err := dkg.Round2(round1State[id], sessionID, incoming, nil)
		Expect(err).NotTo(HaveOccurred())
		sent[id], round2State[id] = envs, state
	}

	configs := make(map[party.ID]*wallet.Config, len(ids))
	for _, id := range ids {
		incoming := make(map[party.ID]*envelope.Envelope, len(ids)-1)
		for _, other := range ids {
			if other != id {
				incoming[other] = sent[other][id]
			}
		}
		cfg, err := dkg.Finalize(round2State[id], incoming)
		Expect(err).NotTo(HaveOccurred())
		configs[id] = cfg
	}
	return configs
}

func runSign(configs map[party.ID]*wallet.Config, signers party.IDSlice, message []byte) (*sign.Signature, error) {
	sessionID := []byte("e2e-sign-session")

	commitments := make(map[party.ID]*sign.NonceCommitment, len(signers))
	nonces := make(map[party.ID]*sign.NonceState, len(signers))
	for _, id := range signers {
		c, n, err := sign.Round1(configs[id], sessionID, message, nil)
		if err != nil {
			return nil, err
		}
		commitments[id], nonces[id] = c, n
	}

	shares := make(map[party.ID]*sign.SignatureShare, len(signers))
	for _, id := range signers {
		share, err := sign.Round2(configs[id], nonces[id], signers, commitments, message, nil)
		if err != nil {
			return nil, err
		}
		shares[id] = share
	}

	return sign.Aggregate(configs[signers[0]], signers, commitments, shares, message, nil)
}

func verifyIndependently(groupKey [32]byte, message []byte, sig *sign.Signature) {
	pub, err := schnorr.ParsePubKey(groupKey[:])
	Expect(err).NotTo(HaveOccurred())
	parsed, err := schnorr.ParseSignature(sig.Bytes())
	Expect(err).NotTo(HaveOccurred())
	Expect(parsed.Verify(message, pub)).To(BeTrue())
	Expect(sign.Verify(groupKey, message, sig)).To(Succeed())
}

var _ = Describe("TSS 2-of-3 sign-and-verify", func() {
	It("produces a distinct, independently-verifiable signature for every 2-party signer set", func() {
		ids := party.IDSlice{"1", "2", "3"}
		configs := runDKG(ids, 2, nil)
		message := make([]byte, 32)

		signerSets := []party.IDSlice{{"1", "2"}, {"1", "3"}, {"2", "3"}}
		signatures := make([]*sign.Signature, 0, len(signerSets))
		for _, signers := range signerSets {
			sig, err := runSign(configs, signers, message)
			Expect(err).NotTo(HaveOccurred())
			verifyIndependently(configs["1"].GroupKey, message, sig)
			signatures = append(signatures, sig)
		}

		Expect(signatures[0].Bytes()).NotTo(Equal(signatures[1].Bytes()))
		Expect(signatures[0].Bytes()).NotTo(Equal(signatures[2].Bytes()))
		Expect(signatures[1].Bytes()).NotTo(Equal(signatures[2].Bytes()))
	})
})

var _ = Describe("HTSS admissibility gate", func() {
	It("refuses a non-admissible signer set and accepts an admissible one", func() {
		ids := party.IDSlice{"1", "2", "3", "4"}
		ranks := party.RankSet{"1": 0, "2": 1, "3": 1, "4": 2}
		configs := runDKG(ids, 3, ranks)
		message := []byte("htss-admissibility-gate-message")

		_, err := runSign(configs, party.IDSlice{"2", "3", "4"}, message)
		Expect(err).To(MatchError(errs.ErrRankViolation))

		sig, err := runSign(configs, party.IDSlice{"1", "2", "3"}, message)
		Expect(err).NotTo(HaveOccurred())
		verifyIndependently(configs["1"].GroupKey, message, sig)
	})
})

var _ = Describe("Reshare preserves the group key", func() {
	It("lets a 2-of-4 successor wallet sign under the original group key", func() {
		oldIDs := party.IDSlice{"1", "2", "3"}
		newIDs := party.IDSlice{"1", "2", "3", "4"}
		oldConfigs := runDKG(oldIDs, 2, nil)
		originalGroupKey := oldConfigs["1"].GroupKey

		_, newTransportPublic := transportKeys(newIDs)
		newTransportSecrets := make(map[party.ID]*curve.Scalar, len(newIDs))
		for _, id := range newIDs {
			s, err := curve.Random(nil)
			Expect(err).NotTo(HaveOccurred())
			newTransportSecrets[id] = s
			newTransportPublic[id] = s.ActOnBase()
		}

		oldQuorum := party.IDSlice{"1", "2"}
		newThreshold := 2

		contributions := make(map[party.ID]*reshare.Round1Output, len(oldQuorum))
		states := make(map[party.ID]*reshare.Round1State, len(oldQuorum))
		for _, id := range oldQuorum {
			out, st, err := reshare.Round1(oldConfigs[id], newIDs, newThreshold, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			contributions[id], states[id] = out, st
		}

		sent := make(map[party.ID]map[party.ID]*envelope.Envelope, len(oldQuorum))
		for _, id := range oldQuorum {
			envs, err := reshare.Round2(states[id], newTransportSecrets[id], newTransportPublic, nil)
			Expect(err).NotTo(HaveOccurred())
			sent[id] = envs
		}

		newConfigs := make(map[party.ID]*wallet.Config, len(newIDs))
		for _, j := range newIDs {
			incoming := make(map[party.ID]*envelope.Envelope, len(oldQuorum))
			for _, id := range oldQuorum {
				incoming[id] = sent[id][j]
			}
			cfg, err := reshare.Finalize(
				j, oldQuorum, oldConfigs["1"].Metadata,
				contributions, incoming,
				newTransportSecrets[j], newTransportPublic,
				newIDs, newThreshold, nil,
				2, originalGroupKey,
			)
			Expect(err).NotTo(HaveOccurred())
			newConfigs[j] = cfg
		}

		message := []byte("reshare-preserves-group-key-message")
		sig, err := runSign(newConfigs, party.IDSlice{"1", "4"}, message)
		Expect(err).NotTo(HaveOccurred())
		verifyIndependently(originalGroupKey, message, sig)
	})
})

var _ = Describe("Recovery round-trip", func() {
	It("reconstructs a lost rank-1 share matching its pre-loss verification share", func() {
		ids := party.IDSlice{"1", "2", "3"}
		ranks := party.RankSet{"1": 0, "2": 1, "3": 1}
		configs := runDKG(ids, 2, ranks)

		lostID := party.ID("3")
		helpers := party.IDSlice{"1", "2"}

		recipientSecret, err := curve.Random(nil)
		Expect(err).NotTo(HaveOccurred())
		recipientPub := recipientSecret.ActOnBase()

		helperTransportPublic := make(map[party.ID]*curve.Point, len(helpers))
		helperTransportSecret := make(map[party.ID]*curve.Scalar, len(helpers))
		for _, id := range helpers {
			s, err := curve.Random(nil)
			Expect(err).NotTo(HaveOccurred())
			helperTransportSecret[id] = s
			helperTransportPublic[id] = s.ActOnBase()
		}

		sent := make(map[party.ID]*envelope.Envelope, len(helpers))
		for _, id := range helpers {
			env, err := recovery.Helper(configs[id], lostID, helpers, helperTransportSecret[id], recipientPub, nil)
			Expect(err).NotTo(HaveOccurred())
			sent[id] = env
		}

		recovered, err := recovery.Finalize(
			lostID, configs["1"].Metadata, helpers, sent,
			recipientSecret, helperTransportPublic,
			configs["1"].VerificationShares, configs["1"].GroupKey, configs["1"].Generation,
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(recovered.Share.ActOnBase().Equal(configs[lostID].VerificationShares[lostID])).To(BeTrue())
	})
})

var _ = Describe("Lagrange overflow regression", func() {
	It("sums to one over 15 indices without native-integer overflow", func() {
		ids := party.IDSlice{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "13", "14", "15"}

		weights, err := polynomial.Lagrange(ids)
		Expect(err).NotTo(HaveOccurred())

		sum := curve.NewScalar()
		for _, w := range weights {
			sum = sum.Add(w)
		}
		one := curve.NewScalar().SetUint32(1)
		Expect(sum.Equal(one)).To(BeTrue())
	})

	It("reconstructs a degree-1 polynomial's constant term from widely spaced indices", func() {
		constant, err := curve.Random(nil)
		Expect(err).NotTo(HaveOccurred())
		poly, err := polynomial.NewRandom(1, constant, nil)
		Expect(err).NotTo(HaveOccurred())

		ids := party.IDSlice{"1", "20"}
		weights, err := polynomial.Lagrange(ids)
		Expect(err).NotTo(HaveOccurred())

		recovered := curve.NewScalar()
		for _, id := range ids {
			x := curve.NewScalar().SetNat(id.Nat())
			recovered = recovered.Add(weights[id].Mul(poly.Evaluate(x)))
		}
		Expect(recovered.Equal(constant)).To(BeTrue())
	})
})

var _ = Describe("NIP-44-style envelope known-answer behavior", func() {
	It("is deterministic for fixed keys and a fixed message nonce, and rejects any single-bit flip", func() {
		alice, err := curve.Random(newDetReader("e2e-envelope-kat-alice"))
		Expect(err).NotTo(HaveOccurred())
		bob, err := curve.Random(newDetReader("e2e-envelope-kat-bob"))
		Expect(err).NotTo(HaveOccurred())
		plaintext := []byte("known-answer-test plaintext")

		env1, err := envelope.Seal(alice, bob.ActOnBase(), plaintext, newDetReader("e2e-envelope-kat-nonce"))
		Expect(err).NotTo(HaveOccurred())
		env2, err := envelope.Seal(alice, bob.ActOnBase(), plaintext, newDetReader("e2e-envelope-kat-nonce"))
		Expect(err).NotTo(HaveOccurred())

		data1, err := env1.Marshal()
		Expect(err).NotTo(HaveOccurred())
		data2, err := env2.Marshal()
		Expect(err).NotTo(HaveOccurred())
		Expect(data1).To(Equal(data2))

		got, err := envelope.Open(bob, alice.ActOnBase(), env1)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(plaintext))

		tampered := *env1
		tampered.Ciphertext = append([]byte(nil), env1.Ciphertext...)
		tampered.Ciphertext[0] ^= 0x01
		_, err = envelope.Open(bob, alice.ActOnBase(), &tampered)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Taproot output-key tweak", func() {
	It("produces a signature that verifies under the BIP341 tweaked output key, not the internal key", func() {
		ids := party.IDSlice{"1", "2", "3"}
		configs := runDKG(ids, 2, nil)
		message := []byte("taproot-tweak-scenario-message-x")[:32]

		outputX, tweak, _, err := curve.TweakPublicKey(configs["1"].GroupKey, nil)
		Expect(err).NotTo(HaveOccurred())

		signers := party.IDSlice{"1", "3"}
		sessionID := []byte("e2e-taproot-tweak-session")

		commitments := make(map[party.ID]*sign.NonceCommitment, len(signers))
		nonces := make(map[party.ID]*sign.NonceState, len(signers))
		for _, id := range signers {
			c, n, err := sign.Round1(configs[id], sessionID, message, nil)
			Expect(err).NotTo(HaveOccurred())
			commitments[id], nonces[id] = c, n
		}

		shares := make(map[party.ID]*sign.SignatureShare, len(signers))
		for _, id := range signers {
			share, err := sign.Round2(configs[id], nonces[id], signers, commitments, message, tweak)
			Expect(err).NotTo(HaveOccurred())
			shares[id] = share
		}

		sig, err := sign.Aggregate(configs[signers[0]], signers, commitments, shares, message, tweak)
		Expect(err).NotTo(HaveOccurred())

		verifyIndependently(outputX, message, sig)
		Expect(sign.Verify(configs["1"].GroupKey, message, sig)).To(HaveOccurred())
	})
})
