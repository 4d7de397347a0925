// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package statusbuf

// Keys read by the ingest loop.
const (
	KeyBindHost = "BINDHOST"
	KeyBindPort = "BINDPORT"
	KeyDestIP   = "DESTIP"
	KeyMaxFlows = "MAXFLOWS"
	KeyBlocSize = "BLOCSIZE"
	KeyFEnChan  = "FENCHAN"
	KeyNAnts    = "NANTS"
	KeyNStrm    = "NSTRM"
	KeyPktNTime = "PKTNTIME"
	KeyPktNChan = "PKTNCHAN"
	KeySChan    = "SCHAN"
	KeyNBits    = "NBITS"
	KeyNPol     = "NPOL"
	KeyChanBW   = "CHAN_BW"
	KeySyncTime = "SYNCTIME"
	KeyPktStart = "PKTSTART"
	KeyDwell    = "DWELL"
	KeyOverlap  = "OVERLAP"
	KeyObsMode  = "OBS_MODE"
	KeyDirectIO = "DIRECTIO" // mirrored for downstream consumers, not acted on here
)

// Keys written by the ingest loop.
const (
	KeyDAQState = "DAQSTATE"
	KeyDAQPulse = "DAQPULSE"
	KeyNetStat  = "NETSTAT"
	KeyNetBufSt = "NETBUFST"
	KeyPktIdx   = "PKTIDX"
	KeyPktStop  = "PKTSTOP"
	KeyObsNChan = "OBSNCHAN"
	KeyPiperBlk = "PIPERBLK"
	KeyObsBW    = "OBSBW"
	KeyTBin     = "TBIN"
	KeyPktFmt   = "PKTFMT"
	KeyNPkts    = "NPKTS"
	KeyNDrop    = "NDROP"
	KeyNLate    = "NLATE"
	KeyNBogus   = "NBOGUS"
	KeyPhysGbps = "PHYSGBPS"
	KeyPhysPkps = "PHYSPKPS"
	KeyNetGbps  = "NETGBPS"
	KeyNetPkps  = "NETPKPS"
	KeyNetBlkMS = "NETBLKMS"
	KeySttIMJD  = "STT_IMJD"
	KeySttSMJD  = "STT_SMJD"
	KeySttOffs  = "STT_OFFS"
	KeySttValid = "STTVALID"
	KeyObsInfo  = "OBSINFO"
)
