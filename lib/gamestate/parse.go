// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gamestate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	companyLine = regexp.MustCompile(`(?i)^#\s*:?(\d+)(?:\([^)]+\))?\s+Company Name:\s*'([^']*)'\s+` +
		`Year Founded:\s*(\d+)\s+Money:\s*\$?([-\d,]+)\s+` +
		`Loan:\s*\$?([\d,]+)\s+Value:\s*\$?([\d,]+)`)
	clientLine = regexp.MustCompile(`(?i)Client #(\d+)\s+name:\s*'([^']*)'\s+company:\s*(\d+)(?:\s+IP:\s*(\S+))?`)
	dateLine   = regexp.MustCompile(`Date:\s*(\d{4})-(\d{2})-(\d{2})`)
)

// ParseCompanies extracts company records from "companies" console
// output. Lines that do not parse are skipped.
func ParseCompanies(output string) []Company {
	var companies []Company
	for _, line := range strings.Split(output, "\n") {
		match := companyLine.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		id, err := strconv.Atoi(match[1])
		if err != nil || id < 1 || id > MaxCompanies {
			continue
		}
		founded, err := strconv.Atoi(match[3])
		if err != nil {
			continue
		}
		money, err1 := parseAmount(match[4])
		loan, err2 := parseAmount(match[5])
		value, err3 := parseAmount(match[6])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		companies = append(companies, Company{
			ID:      CompanyID(id),
			Name:    strings.TrimSpace(match[2]),
			Founded: founded,
			Money:   money,
			Loan:    loan,
			Value:   value,
		})
	}
	return companies
}

// ParseClients extracts client records from "clients" console output.
// The company column is already 1-based, with 255 for spectators.
func ParseClients(output string) []Client {
	var clients []Client
	for _, line := range strings.Split(output, "\n") {
		match := clientLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		id, err := strconv.ParseUint(match[1], 10, 32)
		if err != nil {
			continue
		}
		company, err := strconv.ParseUint(match[3], 10, 8)
		if err != nil {
			continue
		}
		clients = append(clients, Client{
			ID:      ClientID(id),
			Name:    match[2],
			Company: CompanyID(company),
			Address: match[4],
		})
	}
	return clients
}

// ParseYear extracts the in-game year from "get_date" output.
func ParseYear(output string) (int, bool) {
	match := dateLine.FindStringSubmatch(output)
	if match == nil {
		return 0, false
	}
	year, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

func parseAmount(s string) (int64, error) {
	return strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
}
