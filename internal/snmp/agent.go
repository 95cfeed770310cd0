package snmp

import (
	"net"

	"github.com/gosnmp/gosnmp"
	"github.com/pkg/errors"

	"github.com/G-Research/idracsim/internal/common/emucontext"
)

const (
	maxPacketSize     = 65535
	maxBulkRepetition = 64
)

var ErrUnknownCommunity = errors.New("unknown community")

// Agent answers SNMP v1 and v2c requests from a Table. All objects are read only.
type Agent struct {
	table          *Table
	readCommunity  string
	writeCommunity string
	codec          *gosnmp.GoSNMP
}

func NewAgent(table *Table, readCommunity, writeCommunity string) *Agent {
	return &Agent{
		table:          table,
		readCommunity:  readCommunity,
		writeCommunity: writeCommunity,
		codec:          &gosnmp.GoSNMP{},
	}
}

// Serve answers requests arriving on conn until ctx is cancelled.
func (a *Agent) Serve(ctx *emucontext.Context, conn net.PacketConn) error {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, maxPacketSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.WithStack(err)
		}
		response, err := a.Handle(buf[:n])
		if err != nil {
			ctx.Log.WithError(err).Debugf("Dropping request from %s", addr)
			continue
		}
		if _, err := conn.WriteTo(response, addr); err != nil {
			ctx.Log.WithError(err).Warnf("Failed to answer %s", addr)
		}
	}
}

// Handle decodes one request and returns the encoded response.
// Requests that cannot be answered, such as those with an unknown community, return an error and no response.
func (a *Agent) Handle(request []byte) (encoded []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			encoded, err = nil, errors.Errorf("malformed request: %v", r)
		}
	}()

	packet, err := a.codec.SnmpDecodePacket(request)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if packet.Version != gosnmp.Version1 && packet.Version != gosnmp.Version2c {
		return nil, errors.Errorf("unsupported snmp version %v", packet.Version)
	}
	if !a.accepts(packet.Community) {
		return nil, errors.WithStack(ErrUnknownCommunity)
	}

	response := &gosnmp.SnmpPacket{
		Version:   packet.Version,
		Community: packet.Community,
		PDUType:   gosnmp.GetResponse,
		RequestID: packet.RequestID,
		Variables: packet.Variables,
	}

	snapshot := a.table.Snapshot()
	switch {
	case snapshot == nil:
		setError(response, gosnmp.GenErr, 0)
	case packet.PDUType == gosnmp.GetRequest:
		a.get(snapshot, packet, response)
	case packet.PDUType == gosnmp.GetNextRequest:
		a.getNext(snapshot, packet, response)
	case packet.PDUType == gosnmp.GetBulkRequest && packet.Version == gosnmp.Version2c:
		a.getBulk(snapshot, packet, response)
	case packet.PDUType == gosnmp.SetRequest:
		a.set(packet, response)
	default:
		return nil, errors.Errorf("unsupported pdu type %v", packet.PDUType)
	}

	encoded, err = response.MarshalMsg()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return encoded, nil
}

func (a *Agent) get(snapshot *Snapshot, packet, response *gosnmp.SnmpPacket) {
	variables := make([]gosnmp.SnmpPDU, len(packet.Variables))
	for i, requested := range packet.Variables {
		pdu, ok := snapshot.Get(requested.Name)
		if !ok {
			if packet.Version == gosnmp.Version1 {
				setError(response, gosnmp.NoSuchName, i+1)
				return
			}
			pdu = gosnmp.SnmpPDU{Name: requested.Name, Type: gosnmp.NoSuchObject}
		}
		variables[i] = pdu
	}
	response.Variables = variables
}

func (a *Agent) getNext(snapshot *Snapshot, packet, response *gosnmp.SnmpPacket) {
	variables := make([]gosnmp.SnmpPDU, len(packet.Variables))
	for i, requested := range packet.Variables {
		pdu, ok := snapshot.Next(requested.Name)
		if !ok {
			if packet.Version == gosnmp.Version1 {
				setError(response, gosnmp.NoSuchName, i+1)
				return
			}
			pdu = endOfMibView(requested.Name)
		}
		variables[i] = pdu
	}
	response.Variables = variables
}

// getBulk answers the first NonRepeaters variables once and then repeats GetNext on the rest,
// interleaving the repetitions, until every repeater is past the end of the table.
func (a *Agent) getBulk(snapshot *Snapshot, packet, response *gosnmp.SnmpPacket) {
	nonRepeaters := int(packet.NonRepeaters)
	if nonRepeaters > len(packet.Variables) {
		nonRepeaters = len(packet.Variables)
	}
	repetitions := int(packet.MaxRepetitions)
	if repetitions > maxBulkRepetition {
		repetitions = maxBulkRepetition
	}

	var variables []gosnmp.SnmpPDU
	for _, requested := range packet.Variables[:nonRepeaters] {
		pdu, ok := snapshot.Next(requested.Name)
		if !ok {
			pdu = endOfMibView(requested.Name)
		}
		variables = append(variables, pdu)
	}

	cursors := make([]string, 0, len(packet.Variables)-nonRepeaters)
	for _, requested := range packet.Variables[nonRepeaters:] {
		cursors = append(cursors, requested.Name)
	}
	for r := 0; r < repetitions && len(cursors) > 0; r++ {
		exhausted := true
		for i, cursor := range cursors {
			pdu, ok := snapshot.Next(cursor)
			if !ok {
				variables = append(variables, endOfMibView(cursor))
				continue
			}
			exhausted = false
			cursors[i] = pdu.Name
			variables = append(variables, pdu)
		}
		if exhausted {
			break
		}
	}
	response.Variables = variables
}

func (a *Agent) set(packet, response *gosnmp.SnmpPacket) {
	if len(packet.Variables) == 0 {
		return
	}
	switch {
	case packet.Version == gosnmp.Version1:
		setError(response, gosnmp.NoSuchName, 1)
	case a.isWriteCommunity(packet.Community):
		setError(response, gosnmp.NotWritable, 1)
	default:
		setError(response, gosnmp.NoAccess, 1)
	}
}

// An empty community string disables that level of access.
func (a *Agent) accepts(community string) bool {
	return (a.readCommunity != "" && community == a.readCommunity) || a.isWriteCommunity(community)
}

func (a *Agent) isWriteCommunity(community string) bool {
	return a.writeCommunity != "" && community == a.writeCommunity
}

// setError fails the response. index is one based and zero when no single variable is at fault.
// Variables are echoed back unchanged.
func setError(response *gosnmp.SnmpPacket, status gosnmp.SNMPError, index int) {
	response.Error = status
	response.ErrorIndex = uint8(index)
}

func endOfMibView(name string) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: name, Type: gosnmp.EndOfMibView}
}
