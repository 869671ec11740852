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

// Standard Modbus function codes (spec.md §6).
const (
	FCReadCoils                  byte = 0x01
	FCReadDiscreteInputs         byte = 0x02
	FCReadHoldingRegisters       byte = 0x03
	FCReadInputRegisters         byte = 0x04
	FCWriteSingleCoil            byte = 0x05
	FCWriteSingleRegister        byte = 0x06
	FCWriteMultipleCoils         byte = 0x0F
	FCWriteMultipleRegisters     byte = 0x10
	FCMaskWriteRegister          byte = 0x16
	FCReadWriteMultipleRegisters byte = 0x17
	FCReadDeviceIdentification   byte = 0x2B
)

// MEITypeReadDeviceIdentification is the MEI sub-type carried in byte 0 of
// the 0x2B PDU body; 0x2B is shared by several MODBUS Encapsulated
// Interface transactions and this is the only one this module implements.
const MEITypeReadDeviceIdentification byte = 0x0E

// Per-request item limits a server can address in a single PDU
// (spec.md §6). Exceeding these yields ParameterLimitError before a
// request ever reaches the queue.
const (
	maxCoilsPerRequest     = 2000
	maxRegistersPerRead    = 125
	maxRegistersPerWrite   = 123
	maxWriteMultipleCoils  = 1968 // byte-count field caps at 246 bytes of coil data
	maxMaskWriteFuncLength = 6    // and, or masks: 2 bytes each plus addr
)

// buildReadRequest builds the 4-byte PDU common to all "read N items
// starting at address" function codes, validating quantity against max.
func buildReadRequest(serverID, fc byte, address, quantity uint16, max int) (ModbusMessage, ErrorKind) {
	if quantity == 0 || int(quantity) > max {
		return ModbusMessage{}, ParameterLimitError
	}
	msg := NewRequestMessage(serverID, fc, nil)
	msg.AppendUint16(address)
	msg.AppendUint16(quantity)
	return msg, Success
}

// ReadCoilsRequest builds a 0x01 request for quantity coils starting at
// address (1-2000, spec.md §6).
func ReadCoilsRequest(serverID byte, address, quantity uint16) (ModbusMessage, ErrorKind) {
	return buildReadRequest(serverID, FCReadCoils, address, quantity, maxCoilsPerRequest)
}

// ReadDiscreteInputsRequest builds a 0x02 request.
func ReadDiscreteInputsRequest(serverID byte, address, quantity uint16) (ModbusMessage, ErrorKind) {
	return buildReadRequest(serverID, FCReadDiscreteInputs, address, quantity, maxCoilsPerRequest)
}

// ReadHoldingRegistersRequest builds a 0x03 request for quantity
// registers starting at address (1-125, spec.md §6).
func ReadHoldingRegistersRequest(serverID byte, address, quantity uint16) (ModbusMessage, ErrorKind) {
	return buildReadRequest(serverID, FCReadHoldingRegisters, address, quantity, maxRegistersPerRead)
}

// ReadInputRegistersRequest builds a 0x04 request.
func ReadInputRegistersRequest(serverID byte, address, quantity uint16) (ModbusMessage, ErrorKind) {
	return buildReadRequest(serverID, FCReadInputRegisters, address, quantity, maxRegistersPerRead)
}

// WriteSingleCoilRequest builds a 0x05 request. value must be 0x0000 or
// 0xFF00 on the wire; callers pass a bool and this helper does the
// translation.
func WriteSingleCoilRequest(serverID byte, address uint16, value bool) (ModbusMessage, ErrorKind) {
	v := uint16(0x0000)
	if value {
		v = 0xFF00
	}
	msg := NewRequestMessage(serverID, FCWriteSingleCoil, nil)
	msg.AppendUint16(address)
	msg.AppendUint16(v)
	return msg, Success
}

// WriteSingleRegisterRequest builds a 0x06 request.
func WriteSingleRegisterRequest(serverID byte, address, value uint16) (ModbusMessage, ErrorKind) {
	msg := NewRequestMessage(serverID, FCWriteSingleRegister, nil)
	msg.AppendUint16(address)
	msg.AppendUint16(value)
	return msg, Success
}

// WriteMultipleCoilsRequest builds a 0x0F request from a slice of coil
// values packed LSB-first into the Modbus bit-packing layout.
func WriteMultipleCoilsRequest(serverID byte, address uint16, values []bool) (ModbusMessage, ErrorKind) {
	count := len(values)
	if count == 0 || count > maxWriteMultipleCoils {
		return ModbusMessage{}, ParameterLimitError
	}
	byteCount := (count + 7) / 8
	packed := make([]byte, byteCount)
	for i, v := range values {
		if v {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	msg := NewRequestMessage(serverID, FCWriteMultipleCoils, nil)
	msg.AppendUint16(address)
	msg.AppendUint16(uint16(count))
	msg.AppendByte(byte(byteCount))
	msg.AppendBytes(packed)
	return msg, Success
}

// WriteMultipleRegistersRequest builds a 0x10 request for 1-123 registers
// (spec.md §6).
func WriteMultipleRegistersRequest(serverID byte, address uint16, values []uint16) (ModbusMessage, ErrorKind) {
	count := len(values)
	if count == 0 || count > maxRegistersPerWrite {
		return ModbusMessage{}, ParameterLimitError
	}
	msg := NewRequestMessage(serverID, FCWriteMultipleRegisters, nil)
	msg.AppendUint16(address)
	msg.AppendUint16(uint16(count))
	msg.AppendByte(byte(count * 2))
	for _, v := range values {
		msg.AppendUint16(v)
	}
	return msg, Success
}

// MaskWriteRegisterRequest builds a 0x16 request.
func MaskWriteRegisterRequest(serverID byte, address, andMask, orMask uint16) (ModbusMessage, ErrorKind) {
	msg := NewRequestMessage(serverID, FCMaskWriteRegister, nil)
	msg.AppendUint16(address)
	msg.AppendUint16(andMask)
	msg.AppendUint16(orMask)
	return msg, Success
}

// ReadWriteMultipleRegistersRequest builds a 0x17 request: read readQty
// registers from readAddr while atomically writing writeValues at
// writeAddr in the same transaction.
func ReadWriteMultipleRegistersRequest(serverID byte, readAddr, readQty, writeAddr uint16, writeValues []uint16) (ModbusMessage, ErrorKind) {
	if readQty == 0 || int(readQty) > maxRegistersPerRead {
		return ModbusMessage{}, ParameterLimitError
	}
	writeCount := len(writeValues)
	if writeCount == 0 || writeCount > maxRegistersPerWrite {
		return ModbusMessage{}, ParameterLimitError
	}
	msg := NewRequestMessage(serverID, FCReadWriteMultipleRegisters, nil)
	msg.AppendUint16(readAddr)
	msg.AppendUint16(readQty)
	msg.AppendUint16(writeAddr)
	msg.AppendUint16(uint16(writeCount))
	msg.AppendByte(byte(writeCount * 2))
	for _, v := range writeValues {
		msg.AppendUint16(v)
	}
	return msg, Success
}

// ReadDeviceIdentificationRequest builds a 0x2B/0x0E request for one page
// of device identification objects: readDevIDCode selects basic (0x01),
// regular (0x02) or extended (0x03) objects, and objectID is the object to
// resume from when a prior response's "more follows" flag was set.
func ReadDeviceIdentificationRequest(serverID, readDevIDCode, objectID byte) (ModbusMessage, ErrorKind) {
	msg := NewRequestMessage(serverID, FCReadDeviceIdentification, nil)
	msg.AppendByte(MEITypeReadDeviceIdentification)
	msg.AppendByte(readDevIDCode)
	msg.AppendByte(objectID)
	return msg, Success
}
