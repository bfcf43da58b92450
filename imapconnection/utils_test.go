// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import "github.com/CrawX/go-imap-triage/domain"

func u32(val int) uint32 {
	return uint32(val)
}

func uids(val ...int) []domain.UID {
	a := []domain.UID{}
	for _, v := range val {
		a = append(a, domain.UID(v))
	}

	return a
}

func u32a(val ...int) []uint32 {
	a := []uint32{}
	for _, v := range val {
		a = append(a, u32(v))
	}

	return a
}
