// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package modbus

// Typed convenience wrappers sitting on top of SyncRequest/AddRequest, in
// the style of the teacher's ModbusHandler.ReadHoldingRegisters: build the
// request via the FC helpers, run it synchronously, and unwrap the result
// into plain Go values instead of a raw ModbusMessage.

// ReadCoils reads quantity coils starting at address from serverID and
// unpacks them into a []bool, one entry per coil.
func (c *Client) ReadCoils(token uint32, serverID byte, address, quantity uint16) ([]bool, ErrorKind) {
	req, kind := ReadCoilsRequest(serverID, address, quantity)
	if kind != Success {
		return nil, kind
	}
	resp := c.SyncRequest(token, req)
	if err := resp.GetError(); err != Success {
		return nil, err
	}
	return unpackBits(resp.Payload(), int(quantity)), Success
}

// ReadDiscreteInputs reads quantity discrete inputs starting at address.
func (c *Client) ReadDiscreteInputs(token uint32, serverID byte, address, quantity uint16) ([]bool, ErrorKind) {
	req, kind := ReadDiscreteInputsRequest(serverID, address, quantity)
	if kind != Success {
		return nil, kind
	}
	resp := c.SyncRequest(token, req)
	if err := resp.GetError(); err != Success {
		return nil, err
	}
	return unpackBits(resp.Payload(), int(quantity)), Success
}

// ReadHoldingRegisters reads quantity holding registers starting at
// address and returns them as big-endian u16 values.
func (c *Client) ReadHoldingRegisters(token uint32, serverID byte, address, quantity uint16) ([]uint16, ErrorKind) {
	req, kind := ReadHoldingRegistersRequest(serverID, address, quantity)
	if kind != Success {
		return nil, kind
	}
	resp := c.SyncRequest(token, req)
	if err := resp.GetError(); err != Success {
		return nil, err
	}
	return unpackRegisters(resp.Payload()), Success
}

// ReadInputRegisters reads quantity input registers starting at address.
func (c *Client) ReadInputRegisters(token uint32, serverID byte, address, quantity uint16) ([]uint16, ErrorKind) {
	req, kind := ReadInputRegistersRequest(serverID, address, quantity)
	if kind != Success {
		return nil, kind
	}
	resp := c.SyncRequest(token, req)
	if err := resp.GetError(); err != Success {
		return nil, err
	}
	return unpackRegisters(resp.Payload()), Success
}

// WriteSingleCoil writes a single coil and reports the outcome.
func (c *Client) WriteSingleCoil(token uint32, serverID byte, address uint16, value bool) ErrorKind {
	req, kind := WriteSingleCoilRequest(serverID, address, value)
	if kind != Success {
		return kind
	}
	return c.SyncRequest(token, req).GetError()
}

// WriteSingleRegister writes a single holding register.
func (c *Client) WriteSingleRegister(token uint32, serverID byte, address, value uint16) ErrorKind {
	req, kind := WriteSingleRegisterRequest(serverID, address, value)
	if kind != Success {
		return kind
	}
	return c.SyncRequest(token, req).GetError()
}

// WriteMultipleCoils writes a run of coils starting at address.
func (c *Client) WriteMultipleCoils(token uint32, serverID byte, address uint16, values []bool) ErrorKind {
	req, kind := WriteMultipleCoilsRequest(serverID, address, values)
	if kind != Success {
		return kind
	}
	return c.SyncRequest(token, req).GetError()
}

// WriteMultipleRegisters writes a run of holding registers starting at
// address.
func (c *Client) WriteMultipleRegisters(token uint32, serverID byte, address uint16, values []uint16) ErrorKind {
	req, kind := WriteMultipleRegistersRequest(serverID, address, values)
	if kind != Success {
		return kind
	}
	return c.SyncRequest(token, req).GetError()
}

// ReadDeviceIdentification reads one page of device identification objects
// (FC 0x2B/0x0E): readDevIDCode selects basic/regular/extended objects and
// objectID resumes a prior page when moreFollows was true. Mirrors the
// teacher's sendReadDeviceIdentification parsing of the more-follows flag,
// next object id and the id/length/value object list.
func (c *Client) ReadDeviceIdentification(token uint32, serverID, readDevIDCode, objectID byte) (objects map[byte]string, moreFollows bool, nextObjectID byte, kind ErrorKind) {
	req, kind := ReadDeviceIdentificationRequest(serverID, readDevIDCode, objectID)
	if kind != Success {
		return nil, false, 0, kind
	}
	resp := c.SyncRequest(token, req)
	if err := resp.GetError(); err != Success {
		return nil, false, 0, err
	}
	payload := resp.Payload()
	if len(payload) < 6 {
		return nil, false, 0, PacketLengthError
	}

	if moreFollowsByte := payload[3]; moreFollowsByte == 0xFF {
		moreFollows = true
		nextObjectID = payload[4]
	}

	count := int(payload[5])
	objects = make(map[byte]string, count)
	idx := 6
	for i := 0; i < count; i++ {
		if idx+2 > len(payload) {
			return objects, moreFollows, nextObjectID, PacketLengthError
		}
		id := payload[idx]
		length := int(payload[idx+1])
		if idx+2+length > len(payload) {
			return objects, moreFollows, nextObjectID, PacketLengthError
		}
		objects[id] = string(payload[idx+2 : idx+2+length])
		idx += 2 + length
	}
	return objects, moreFollows, nextObjectID, Success
}

// unpackBits expands a Modbus bit-packed byte-coil payload (skipping the
// leading byte-count byte) into count booleans, LSB-first.
func unpackBits(payload []byte, count int) []bool {
	if len(payload) < 1 {
		return nil
	}
	data := payload[1:]
	out := make([]bool, 0, count)
	for i := 0; i < count; i++ {
		byteIdx, bitIdx := i/8, uint(i%8)
		if byteIdx >= len(data) {
			break
		}
		out = append(out, data[byteIdx]&(1<<bitIdx) != 0)
	}
	return out
}

// unpackRegisters expands a register-read payload (skipping the leading
// byte-count byte) into big-endian u16 values.
func unpackRegisters(payload []byte) []uint16 {
	if len(payload) < 1 {
		return nil
	}
	data := payload[1:]
	out := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		out = append(out, uint16(data[i])<<8|uint16(data[i+1]))
	}
	return out
}
