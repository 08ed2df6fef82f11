// SPDX-License-Identifier: BSD-3-Clause
//
// Authors: Stefan Jumarea <stefanjumarea02@gmail.com>
//
// Copyright (c) 2022, Unikraft GmbH.  All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the names of its
//    contributors may be used to endorse or promote products derived from
//    this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package config

import (
	"os"
	"reflect"
	"strconv"
)

// EnvFeeder feeds using environment variables, reading the `env:"..."`
// struct tag the same way setDefaultValue reads `default:"..."`.
type EnvFeeder struct{}

func (f EnvFeeder) Feed(structure interface{}) error {
	cfg := *structure.(**Config)
	return feedEnvValue(reflect.ValueOf(cfg))
}

func feedEnvValue(v reflect.Value) error {
	v = reflect.Indirect(v)

	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			tag := v.Type().Field(i).Tag.Get("env")

			if field.Kind() == reflect.Struct {
				if err := feedEnvValue(field.Addr()); err != nil {
					return err
				}
				continue
			}

			if tag == "" {
				continue
			}

			raw, ok := os.LookupEnv(tag)
			if !ok {
				continue
			}

			switch field.Kind() {
			case reflect.String:
				field.SetString(raw)
			case reflect.Bool:
				b, err := strconv.ParseBool(raw)
				if err != nil {
					return err
				}
				field.SetBool(b)
			case reflect.Int:
				n, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return err
				}
				field.SetInt(n)
			}
		}
	}

	return nil
}

// Write is a no-op: the environment is never written back to.
func (f EnvFeeder) Write(structure interface{}, merge bool) error {
	return nil
}
